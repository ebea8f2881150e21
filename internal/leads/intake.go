package leads

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bouwsite/internal/metrics"
	"bouwsite/internal/queue"
	"bouwsite/internal/store"
)

type ContactForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Project string `json:"project"`
	Message string `json:"message"`
}

// ValidationError maps form fields to a message shown next to the field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid contact form: " + strings.Join(parts, "; ")
}

// Enqueuer is satisfied by *queue.StreamQueue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.NotifyJob) (string, error)
}

type LeadSaver interface {
	Save(ctx context.Context, lead store.Lead) error
}

type Intake struct {
	leads   LeadSaver
	jobs    Enqueuer
	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewIntake(leads LeadSaver, jobs Enqueuer, logger zerolog.Logger) *Intake {
	return &Intake{
		leads:   leads,
		jobs:    jobs,
		now:     time.Now,
		logger:  logger,
		metrics: metrics.Global(),
	}
}

// Submit stores the form as a new lead and queues a notification. A failed
// enqueue is logged; the lead is kept either way.
func (in *Intake) Submit(ctx context.Context, form ContactForm) (store.Lead, error) {
	form = trimForm(form)
	if err := validate(form); err != nil {
		return store.Lead{}, err
	}

	lead := store.Lead{
		ID:      store.NewID(),
		Name:    form.Name,
		Email:   form.Email,
		Phone:   form.Phone,
		Project: form.Project,
		Message: form.Message,
		Date:    in.now().UTC(),
		Status:  store.LeadNew,
	}
	if err := in.leads.Save(ctx, lead); err != nil {
		return store.Lead{}, fmt.Errorf("save lead: %w", err)
	}
	in.metrics.LeadsCreated.Inc()

	if in.jobs != nil {
		if _, err := in.jobs.Enqueue(ctx, queue.NotifyJob{LeadID: lead.ID}); err != nil {
			in.logger.Error().Err(err).Str("lead_id", lead.ID).Msg("failed to enqueue lead notification")
		}
	}
	return lead, nil
}

func trimForm(f ContactForm) ContactForm {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Project = strings.TrimSpace(f.Project)
	f.Message = strings.TrimSpace(f.Message)
	return f
}

func validate(f ContactForm) error {
	fields := map[string]string{}
	if f.Name == "" {
		fields["name"] = "Naam is verplicht."
	}
	if f.Email == "" {
		fields["email"] = "E-mailadres is verplicht."
	} else if !validEmail(f.Email) {
		fields["email"] = "Ongeldig e-mailadres."
	}
	if f.Phone != "" && !validPhone(f.Phone) {
		fields["phone"] = "Ongeldig telefoonnummer."
	}
	if f.Message == "" {
		fields["message"] = "Bericht is verplicht."
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@")+1:], ".")
}

// validPhone allows digits with spaces, dots, dashes, slashes, parentheses
// and one leading plus, with at least eight digits.
func validPhone(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case strings.ContainsRune(" .-/()", r):
		default:
			return false
		}
	}
	return digits >= 8
}
