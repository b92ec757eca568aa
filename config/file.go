package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// LoadFile reads a node .conf file of "key = value" lines. Blank lines and
// lines starting with # are skipped, and a value may be wrapped in single
// or double quotes. A missing file yields no values.
func LoadFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := map[string]string{}
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected key = value", path, n)
		}
		values[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	return values, sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// ApplyFileConfig sets the Config fields whose conf tag matches a key in
// values. Unknown keys are ignored so newer files work with older
// binaries.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	fields := confFields(reflect.ValueOf(cfg).Elem())
	for key, raw := range values {
		field, ok := fields[key]
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	cfg.Network = NetworkType(strings.ToLower(string(cfg.Network)))
	return nil
}

// confFields indexes the settable fields of v, descending into nested
// structs, by their conf tag.
func confFields(v reflect.Value) map[string]reflect.Value {
	out := map[string]reflect.Value{}
	for i := range v.NumField() {
		f, sf := v.Field(i), v.Type().Field(i)
		if tag := sf.Tag.Get("conf"); tag != "" {
			out[tag] = f
			continue
		}
		if f.Kind() == reflect.Struct {
			for k, nested := range confFields(f) {
				out[k] = nested
			}
		}
	}
	return out
}

func setField(f reflect.Value, raw string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(raw)
	case reflect.Bool:
		b, err := parseBool(raw)
		if err != nil {
			return err
		}
		f.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", f.Kind())
	}
	return nil
}

// parseBool accepts the usual on/off spellings on top of strconv's.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

const defaultConfigTemplate = `# klingnet-stake node configuration
#
# Node settings only. Chain parameters (stake maturity, difficulty limits,
# epoch length) are built in per network; regtest may override them with
# params.file.

# mainnet, testnet or regtest
network = %s

# datadir = ~/.klingnet-stake

# JSON file overriding the chain parameters
# params.file =

# Keep chain state in memory only
# storage.inmemory = false

# Propose blocks and cast finalization votes with this keystore address
staking.enabled = false
# staking.validator =

log.level = info
# log.file =
log.json = false
`

// WriteDefaultConfig writes a commented starter config for network. It
// refuses to overwrite an existing file.
func WriteDefaultConfig(path string, network NetworkType) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, defaultConfigTemplate, network); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
