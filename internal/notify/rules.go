package notify

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sakif/gifteo/internal/model"
)

//go:embed global_events.yaml
var defaultGlobalEvents []byte

// ruleFile is the on-disk shape of the global-event reference data.
type ruleFile struct {
	Events []rule `yaml:"events"`
}

type rule struct {
	ID         string `yaml:"id"          validate:"required,max=64"`
	Country    string `yaml:"country"     validate:"required,len=2,uppercase"`
	Name       string `yaml:"name"        validate:"required,max=100"`
	Month      int    `yaml:"month"       validate:"min=1,max=12"`
	Day        *int   `yaml:"day"         validate:"omitempty,min=1,max=31"`
	Weekday    *int   `yaml:"weekday"     validate:"omitempty,min=0,max=6"`
	Nth        *int   `yaml:"nth"         validate:"omitempty,min=-5,max=5,ne=0"`
	DaysBefore int    `yaml:"days_before" validate:"min=0,max=365"`
}

var errRuleForm = errors.New("needs either day, or weekday and nth, but not both")

func (r rule) toModel() (model.GlobalEvent, error) {
	fixed := r.Day != nil
	floating := r.Weekday != nil && r.Nth != nil
	if fixed == floating || (!floating && (r.Weekday != nil || r.Nth != nil)) {
		return model.GlobalEvent{}, fmt.Errorf("notify: global event %s: %w", r.ID, errRuleForm)
	}

	g := model.GlobalEvent{
		ID:          r.ID,
		CountryCode: r.Country,
		Name:        r.Name,
		Month:       time.Month(r.Month),
		Day:         r.Day,
		Nth:         r.Nth,
		DaysBefore:  r.DaysBefore,
	}
	if r.Weekday != nil {
		w := time.Weekday(*r.Weekday)
		g.Weekday = &w
	}
	return g, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadGlobalEvents reads holiday rules from path, or the embedded defaults
// when path is empty.
func LoadGlobalEvents(path string, logger *slog.Logger) ([]model.GlobalEvent, error) {
	data := defaultGlobalEvents
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("notify: reading global events: %w", err)
		}
		data = b
	}
	return ParseGlobalEvents(data, logger)
}

// ParseGlobalEvents decodes a YAML rule document. A document that is not
// valid YAML fails as a whole. A single malformed or duplicate rule is
// logged and skipped; the remaining rules still load.
func ParseGlobalEvents(data []byte, logger *slog.Logger) ([]model.GlobalEvent, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("notify: decoding global events: %w", err)
	}

	seen := make(map[string]bool, len(f.Events))
	events := make([]model.GlobalEvent, 0, len(f.Events))
	for i, r := range f.Events {
		skip := func(err error) {
			logger.Warn("skipping global event rule",
				slog.Int("index", i),
				slog.String("id", r.ID),
				slog.String("error", err.Error()),
			)
		}

		if err := validate.Struct(r); err != nil {
			skip(err)
			continue
		}
		if seen[r.ID] {
			skip(fmt.Errorf("duplicate id %q", r.ID))
			continue
		}
		g, err := r.toModel()
		if err != nil {
			skip(err)
			continue
		}
		seen[r.ID] = true
		events = append(events, g)
	}
	return events, nil
}
