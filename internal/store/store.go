// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/geek-intake/internal/domain"
)

// ConversationStore persists the chat log of intake conversations.
type ConversationStore interface {
	// AppendMessage adds a message to a conversation, creating the conversation
	// (owned by userID) on first append.
	AppendMessage(ctx context.Context, userID, conversationID string, msg domain.ChatMessage) error

	// GetConversation returns the conversation with messages in arrival order.
	// Returns domain.NotFoundError when the conversation does not exist.
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)

	// ListConversations returns a user's conversations, newest first.
	ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)

	// DeleteConversation removes a conversation and its messages and returns
	// the number of rows removed.
	DeleteConversation(ctx context.Context, conversationID string) (int64, error)
}

// IssueStore persists extracted issue records.
type IssueStore interface {
	// CreateIssue stores a new record, assigning its id and timestamps.
	// Returns domain.ConflictError if the conversation already has an issue.
	CreateIssue(ctx context.Context, issue *domain.IssueRecord) (*domain.IssueRecord, error)

	// GetIssue retrieves an issue by id.
	GetIssue(ctx context.Context, issueID string) (*domain.IssueRecord, error)

	// ListIssuesByUser returns every issue reported by a user.
	ListIssuesByUser(ctx context.Context, userID string) ([]*domain.IssueRecord, error)
}

// CatalogStore reads and seeds the service catalog.
type CatalogStore interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
	GetCategoryByTitle(ctx context.Context, title string) (*domain.Category, error)
	GetSubcategoryByTitle(ctx context.Context, title string) (*domain.Subcategory, error)
	ListSubcategoriesByIDs(ctx context.Context, ids []string) ([]domain.Subcategory, error)
	ListBrandsByCategory(ctx context.Context, categoryID string) ([]domain.Brand, error)

	UpsertCategory(ctx context.Context, c *domain.Category) error
	UpsertSubcategory(ctx context.Context, s *domain.Subcategory) error
	UpsertBrand(ctx context.Context, b *domain.Brand) error
}

// CityOrState restricts providers to a city or a state. Empty parts are ignored.
type CityOrState struct {
	City  string
	State string
}

// ProviderQuery selects providers for matching. Every non-empty part is ANDed.
type ProviderQuery struct {
	// SkillIDs matches providers whose primary or any secondary skill is listed.
	SkillIDs []string
	// Area matches on exact city or state.
	Area *CityOrState
	// LocationTokens must each appear, case-insensitively, in one of the
	// provider's address lines, city, state or pin.
	LocationTokens []string
	Offset         int
	// Limit <= 0 returns every remaining row.
	Limit int
}

// ProviderPage is one page of matched providers and the pre-pagination total.
type ProviderPage struct {
	Providers []domain.MatchedProvider
	Total     int
}

// ProviderFilter is the ad hoc provider listing filter.
type ProviderFilter struct {
	Type         domain.ProviderType
	PrimarySkill string
	Brand        string
	MinYOE       *int
	Mode         domain.ModeOfService
	IsVerified   *bool
	Limit        int
	Skip         int
}

// ProviderStore reads and seeds service providers.
type ProviderStore interface {
	// QueryProviders runs a facet query: one page plus the total match count.
	QueryProviders(ctx context.Context, q ProviderQuery) (*ProviderPage, error)
	ListProviders(ctx context.Context, f ProviderFilter) ([]domain.Provider, error)
	GetProvider(ctx context.Context, providerID string) (*domain.Provider, error)
	UpsertProvider(ctx context.Context, p *domain.Provider) error
}

// UserStore reads and seeds seekers.
type UserStore interface {
	// GetUser retrieves a user by id. Returns domain.NotFoundError when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpsertUser(ctx context.Context, u *domain.User) error
}

// Repository is the full persistence capability.
type Repository interface {
	ConversationStore
	IssueStore
	CatalogStore
	ProviderStore
	UserStore

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
