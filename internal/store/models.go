package store

import (
	"encoding/json"
	"time"
)

type ProviderName string

const (
	ProviderNaga        ProviderName = "naga"
	ProviderOpenAI      ProviderName = "openai"
	ProviderGroq        ProviderName = "groq"
	ProviderHuggingFace ProviderName = "huggingface"
	ProviderCloudflare  ProviderName = "cloudflare"
)

// Providers lists every supported provider in display order.
var Providers = []ProviderName{
	ProviderNaga,
	ProviderOpenAI,
	ProviderGroq,
	ProviderHuggingFace,
	ProviderCloudflare,
}

func (p ProviderName) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

type ProviderConfig struct {
	APIKey    string `json:"apiKey"`
	Model     string `json:"model"`
	BaseURL   string `json:"baseUrl"`
	AccountID string `json:"accountId,omitempty"`
}

// Usable reports whether the config has enough to issue a request.
func (c ProviderConfig) Usable() bool {
	return c.APIKey != "" && c.Model != ""
}

type KnowledgeDocument struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type Settings struct {
	SchemaVersion  int                             `json:"schemaVersion"`
	ActiveProvider ProviderName                    `json:"activeProvider"`
	Providers      map[ProviderName]ProviderConfig `json:"providers"`
	BotName        string                          `json:"botName"`
	SystemPrompt   string                          `json:"systemPrompt"`
	KnowledgeBase  []KnowledgeDocument             `json:"knowledgeBase"`
}

// Active returns the config of the selected provider.
func (s Settings) Active() ProviderConfig {
	return s.Providers[s.ActiveProvider]
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

type ChatSession struct {
	ID              string        `json:"id"`
	StartTime       time.Time     `json:"startTime"`
	LastMessageTime time.Time     `json:"lastMessageTime"`
	Messages        []Message     `json:"messages"`
	Preview         string        `json:"preview"`
	Status          SessionStatus `json:"status"`
	Tags            []string      `json:"tags"`
}

func (s ChatSession) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type PageStatus string

const (
	PageDraft     PageStatus = "draft"
	PagePublished PageStatus = "published"
)

type SEO struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
}

// Page is a CMS page. Content is an opaque block document; it is stored
// compacted, so whitespace inside it does not survive a save.
type Page struct {
	ID        string          `json:"id"`
	Slug      string          `json:"slug"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content,omitempty"`
	Status    PageStatus      `json:"status"`
	ParentID  *string         `json:"parentId,omitempty"`
	SEO       *SEO            `json:"seo,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaDocument MediaType = "document"
)

type MediaItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	Type       MediaType `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQuoted    LeadStatus = "quoted"
	LeadWon       LeadStatus = "won"
	LeadLost      LeadStatus = "lost"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadQuoted, LeadWon, LeadLost:
		return true
	}
	return false
}

type Lead struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Email   string     `json:"email"`
	Phone   string     `json:"phone"`
	Project string     `json:"project"`
	Message string     `json:"message"`
	Date    time.Time  `json:"date"`
	Status  LeadStatus `json:"status"`
}
