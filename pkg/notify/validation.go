package notify

import (
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wastorga/sim/pkg/models"
)

// Input is the create/update body of an outbound webhook. Nil fields are "not supplied":
// on create they take defaults, on update they keep the stored value.
type Input struct {
	URL                *string              `json:"url"`
	Secret             *string              `json:"secret"`
	IncludeFinalOutput *bool                `json:"includeFinalOutput"`
	IncludeTraceSpans  *bool                `json:"includeTraceSpans"`
	IncludeRateLimits  *bool                `json:"includeRateLimits"`
	IncludeUsageData   *bool                `json:"includeUsageData"`
	LevelFilter        []models.LogLevel    `json:"levelFilter"`
	TriggerFilter      []models.TriggerType `json:"triggerFilter"`
	Active             *bool                `json:"active"`
}

// DefaultLevelFilter is applied to new configs that do not name levels.
var DefaultLevelFilter = []models.LogLevel{models.LevelInfo, models.LevelError}

type configRules struct {
	URL           string               `validate:"required,url"`
	LevelFilter   []models.LogLevel    `validate:"min=1,dive,oneof=info error"`
	TriggerFilter []models.TriggerType `validate:"min=1,dive,oneof=api webhook schedule manual chat"`
}

// validateConfig checks a fully merged config. Uniqueness is checked by the service.
func validateConfig(validate *validator.Validate, config *models.OutboundWebhookConfig) *ValidationError {
	verr := newValidationError()

	rules := configRules{
		URL:           strings.TrimSpace(config.URL),
		LevelFilter:   config.LevelFilter,
		TriggerFilter: config.TriggerFilter,
	}

	err := validate.Struct(rules)

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			field, _, _ := strings.Cut(fe.StructField(), "[")

			switch field {
			case "URL":
				if fe.Tag() == "required" {
					verr.Add(FieldURL, MsgURLRequired)
				} else {
					verr.Add(FieldURL, MsgURLInvalid)
				}
			case "LevelFilter":
				if fe.Tag() == "min" {
					verr.Add(FieldLevelFilter, MsgLevelRequired)
				} else {
					verr.Add(FieldLevelFilter, MsgInvalidLevel)
				}
			case "TriggerFilter":
				if fe.Tag() == "min" {
					verr.Add(FieldTriggerFilter, MsgTriggerRequired)
				} else {
					verr.Add(FieldTriggerFilter, MsgInvalidTrigger)
				}
			}
		}
	}

	if _, ok := verr.Fields[FieldURL]; !ok && rules.URL != "" {
		if message := checkURL(rules.URL); message != "" {
			verr.Add(FieldURL, message)
		}
	}

	return verr
}

func checkURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" {
		return MsgURLInvalid
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return MsgURLScheme
	}

	if parsed.Host == "" {
		return MsgURLInvalid
	}

	return ""
}

// apply merges input into config. isNew selects create defaults for absent fields.
func (in Input) apply(config *models.OutboundWebhookConfig, isNew bool) {
	if in.URL != nil {
		config.URL = strings.TrimSpace(*in.URL)
	}

	// the secret is write-only: an empty value never clears it
	if in.Secret != nil && *in.Secret != "" {
		config.Secret = *in.Secret
	}

	setBool(&config.IncludeFinalOutput, in.IncludeFinalOutput)
	setBool(&config.IncludeTraceSpans, in.IncludeTraceSpans)
	setBool(&config.IncludeRateLimits, in.IncludeRateLimits)
	setBool(&config.IncludeUsageData, in.IncludeUsageData)

	switch {
	case in.LevelFilter != nil:
		config.LevelFilter = in.LevelFilter
	case isNew:
		config.LevelFilter = append([]models.LogLevel(nil), DefaultLevelFilter...)
	}

	switch {
	case in.TriggerFilter != nil:
		config.TriggerFilter = in.TriggerFilter
	case isNew:
		config.TriggerFilter = append([]models.TriggerType(nil), models.AllTriggerTypes...)
	}

	switch {
	case in.Active != nil:
		config.Active = *in.Active
	case isNew:
		config.Active = true
	}
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}
