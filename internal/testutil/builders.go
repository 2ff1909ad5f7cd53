package testutil

import (
	"time"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

// JobSpecBuilder provides a fluent interface for building JobSpec values for testing.
type JobSpecBuilder struct {
	spec model.JobSpec
}

// NewJobSpec creates a remote sv→en booking due one day after TestTime.
func NewJobSpec() *JobSpecBuilder {
	return &JobSpecBuilder{
		spec: model.JobSpec{
			FromLanguage:    "sv",
			ToLanguage:      "en",
			DueAt:           TestTime().Add(24 * time.Hour),
			DurationMinutes: 60,
		},
	}
}

// WithLanguages sets the language pair.
func (b *JobSpecBuilder) WithLanguages(from, to string) *JobSpecBuilder {
	b.spec.FromLanguage = from
	b.spec.ToLanguage = to
	return b
}

// Physical marks the job as on-site in town.
func (b *JobSpecBuilder) Physical(town string) *JobSpecBuilder {
	b.spec.Physical = true
	b.spec.Town = town
	return b
}

// WithGender sets the required translator gender.
func (b *JobSpecBuilder) WithGender(gender string) *JobSpecBuilder {
	b.spec.RequiredGender = gender
	return b
}

// Certified requires a certified translator.
func (b *JobSpecBuilder) Certified() *JobSpecBuilder {
	b.spec.RequiresCertified = true
	return b
}

// WithDueAt sets the due time.
func (b *JobSpecBuilder) WithDueAt(due time.Time) *JobSpecBuilder {
	b.spec.DueAt = due
	return b
}

// WithCustomerPhone sets the phone number a translator calls.
func (b *JobSpecBuilder) WithCustomerPhone(phone string) *JobSpecBuilder {
	b.spec.CustomerPhone = phone
	return b
}

// Build returns the spec.
func (b *JobSpecBuilder) Build() model.JobSpec {
	return b.spec
}

// TranslatorBuilder builds directory translators for matching tests.
type TranslatorBuilder struct {
	t model.Translator
}

// NewTranslator creates an available sv/en translator reachable on both channels.
func NewTranslator(id string) *TranslatorBuilder {
	return &TranslatorBuilder{
		t: model.Translator{
			ID:        id,
			Name:      "Translator " + id,
			PushToken: "push-" + id,
			Phone:     "+4670" + id,
			Languages: []string{"sv", "en"},
			Available: true,
		},
	}
}

// WithLanguages replaces the spoken languages.
func (b *TranslatorBuilder) WithLanguages(langs ...string) *TranslatorBuilder {
	b.t.Languages = langs
	return b
}

// WithTowns sets the towns served for physical jobs.
func (b *TranslatorBuilder) WithTowns(towns ...string) *TranslatorBuilder {
	b.t.Towns = towns
	return b
}

// WithGender sets the gender.
func (b *TranslatorBuilder) WithGender(g string) *TranslatorBuilder {
	b.t.Gender = g
	return b
}

// Certified marks the translator as certified.
func (b *TranslatorBuilder) Certified() *TranslatorBuilder {
	b.t.Certified = true
	return b
}

// Unavailable marks the translator as not taking jobs.
func (b *TranslatorBuilder) Unavailable() *TranslatorBuilder {
	b.t.Available = false
	return b
}

// WithoutContact clears both push token and phone.
func (b *TranslatorBuilder) WithoutContact() *TranslatorBuilder {
	b.t.PushToken = ""
	b.t.Phone = ""
	return b
}

// WithAttr sets one free-form attribute visible to eligibility expressions.
func (b *TranslatorBuilder) WithAttr(key string, value any) *TranslatorBuilder {
	if b.t.Attrs == nil {
		b.t.Attrs = map[string]any{}
	}
	b.t.Attrs[key] = value
	return b
}

// Build returns a pointer to a copy of the translator.
func (b *TranslatorBuilder) Build() *model.Translator {
	t := b.t
	return &t
}

// NewCustomer returns a customer reachable by push only, optionally blocking translators.
func NewCustomer(id string, blocked ...string) *model.Customer {
	return &model.Customer{
		ID:                 id,
		Name:               "Customer " + id,
		PushToken:          "push-" + id,
		BlockedTranslators: blocked,
	}
}
