package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

func parseYaml(out interface{}, blob []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("can't parse yaml: %w", err)
	}
	return nil
}

// Duration decodes yaml values like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("can't decode duration node: %w", err)
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("can't parse duration %q: %w", raw, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Level decodes yaml log level names understood by logrus.
type Level logrus.Level

func (l *Level) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("can't decode log level node: %w", err)
	}
	v, err := logrus.ParseLevel(raw)
	if err != nil {
		return fmt.Errorf("can't parse log level %q: %w", raw, err)
	}
	*l = Level(v)
	return nil
}

func (l Level) MarshalYAML() (interface{}, error) {
	return logrus.Level(l).String(), nil
}
