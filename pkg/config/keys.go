package config

import (
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned for a key that is not part of the config file
var ErrUnknownKey = errors.New("unknown config key")

// fields returns the config as ordered key/value scalar pairs
func (cfg *Config) fields() ([]*yaml.Node, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return doc.Content, nil
}

// Keys lists the config file keys in file order
func Keys() []string {
	content, err := DefaultConfig().fields()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(content)/2)
	for i := 0; i+1 < len(content); i += 2 {
		keys = append(keys, content[i].Value)
	}
	return keys
}

// Get returns the value of key as it would appear in the config file
func (cfg *Config) Get(key string) (string, error) {
	content, err := cfg.fields()
	if err != nil {
		return "", err
	}
	for i := 0; i+1 < len(content); i += 2 {
		if content[i].Value == key {
			return content[i+1].Value, nil
		}
	}
	return "", errors.Mark(errors.Newf("%q (valid: %v)", key, Keys()), ErrUnknownKey)
}

// Set parses value with the YAML rules of the config file and assigns it
// to key. The result is validated.
func (cfg *Config) Set(key, value string) error {
	if _, err := cfg.Get(key); err != nil {
		return err
	}
	node := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: key},
			{Kind: yaml.ScalarNode, Value: value},
		},
	}
	next := *cfg
	if err := node.Decode(&next); err != nil {
		return errors.Wrapf(err, "invalid value for %s", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*cfg = next
	return nil
}
