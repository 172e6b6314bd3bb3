package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"moul.io/zapfilter"
)

// Config declares per-namespace log levels using zapfilter rule syntax,
// for example "debug:processing.* info:*".
type Config struct {
	Filters []string `yaml:"filters"`
}

func LoadConfig(fileName string) (*Config, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse log config %s: %w", fileName, err)
	}
	return &cfg, nil
}

func (c *Config) Rules() string {
	return strings.Join(c.Filters, " ")
}

// NewWithFilters creates a JSON logger whose output is restricted by
// zapfilter rules. The wrapped core is opened up to debug level, the rules
// decide per namespace what gets through.
func NewWithFilters(out io.Writer, level Level, rules string, opts ...Option) (*Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	filterFunc, err := zapfilter.ParseRules(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid log filter rules %q: %w", rules, err)
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(defaultEncoderConfig()),
		zapcore.AddSync(out),
		zapcore.DebugLevel,
	)
	return &Logger{
		l:     zap.New(zapfilter.NewFilteringCore(core, filterFunc), opts...),
		level: level,
	}, nil
}
