// Package estate holds the listing operations the app screens fetch through:
// latest and filtered properties, a property with its agent, reviews and
// gallery, and the signed-in user. Every read has the fetch.Func shape.
package estate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/truehome/estate/internal/backend"
	"github.com/truehome/estate/internal/fetch"
	"github.com/truehome/estate/pkg/logger"
)

// LatestLimit is how many properties the featured strip shows.
const LatestLimit = 5

// ErrMissingID is returned by PropertyByID when no id parameter is given.
var ErrMissingID = errors.New("property id is required")

// Tables names the backend tables holding each record type.
type Tables struct {
	Properties string
	Agents     string
	Reviews    string
	Galleries  string
}

// DefaultTables returns the table names used by the hosted project.
func DefaultTables() Tables {
	return Tables{
		Properties: "properties",
		Agents:     "agents",
		Reviews:    "reviews",
		Galleries:  "galleries",
	}
}

// Service runs listing and account operations against the backend.
type Service struct {
	client *backend.Client
	tables Tables
	images *backend.BucketClient
	log    *logger.Logger
}

// Config configures a Service.
type Config struct {
	Tables      Tables
	ImageBucket string
	Logger      *logger.Logger
}

// NewService creates a Service.
func NewService(client *backend.Client, cfg Config) *Service {
	tables := cfg.Tables
	defaults := DefaultTables()
	if tables.Properties == "" {
		tables.Properties = defaults.Properties
	}
	if tables.Agents == "" {
		tables.Agents = defaults.Agents
	}
	if tables.Reviews == "" {
		tables.Reviews = defaults.Reviews
	}
	if tables.Galleries == "" {
		tables.Galleries = defaults.Galleries
	}

	bucket := cfg.ImageBucket
	if bucket == "" {
		bucket = "images"
	}

	return &Service{
		client: client,
		tables: tables,
		images: client.Storage().From(bucket),
		log:    logger.OrDiscard(cfg.Logger).Named("estate"),
	}
}

// LatestProperties returns the oldest LatestLimit listings, as featured on
// the home screen. It takes no parameters. Like Properties it returns
// backend failures as errors rather than an empty slice.
func (s *Service) LatestProperties(ctx context.Context, _ fetch.Params) ([]Property, error) {
	var rows []Property
	err := s.client.From(s.tables.Properties).
		Select("*").
		Order("created_at", true).
		Limit(LatestLimit).
		Into(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("latest properties: %w", err)
	}
	return s.resolveAll(rows), nil
}

// Properties returns listings newest first. Recognised parameters:
//
//	filter  property type; "" or "All" means any type
//	query   free text matched against name, address and type
//	limit   maximum rows; 0 or absent means no limit
//
// Backend failures are returned as errors, so an empty slice always means
// nothing matched.
func (s *Service) Properties(ctx context.Context, p fetch.Params) ([]Property, error) {
	limit, err := p.Int("limit")
	if err != nil {
		return nil, fmt.Errorf("properties: %w", err)
	}
	if limit < 0 {
		return nil, fmt.Errorf("properties: limit must not be negative, got %d", limit)
	}

	q := s.client.From(s.tables.Properties).
		Select("*").
		Order("created_at", false)

	if filter := strings.TrimSpace(p.String("filter")); filter != "" && filter != "All" {
		q = q.Eq("type", filter)
	}
	if query := strings.TrimSpace(p.String("query")); query != "" {
		q = q.Search(query, "name", "address", "type")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []Property
	if err := q.Into(ctx, &rows); err != nil {
		return nil, fmt.Errorf("properties: %w", err)
	}
	return s.resolveAll(rows), nil
}

// PropertyByID returns one listing with its agent, reviews and gallery.
// The id parameter is required.
func (s *Service) PropertyByID(ctx context.Context, p fetch.Params) (*Property, error) {
	id := strings.TrimSpace(p.String("id"))
	if id == "" {
		return nil, ErrMissingID
	}

	columns := fmt.Sprintf("*,agent:%s(*),reviews:%s(*),gallery:%s(*)",
		s.tables.Agents, s.tables.Reviews, s.tables.Galleries)

	var prop Property
	err := s.client.From(s.tables.Properties).
		Select(columns).
		Eq("id", id).
		Single().
		Into(ctx, &prop)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", id, err)
	}
	s.resolve(&prop)
	return &prop, nil
}

// CurrentUser returns the signed-in user, or nil when nobody is signed in.
// Other failures are returned as errors. The avatar is the identity
// provider's picture, or an initials image when there is none.
func (s *Service) CurrentUser(ctx context.Context) (*User, error) {
	u, err := s.client.Auth().GetUser(ctx)
	if errors.Is(err, backend.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	name := u.Name()
	avatar := u.AvatarURL()
	if avatar == "" {
		avatar = initialsAvatar(name)
	}
	verified := u.EmailConfirmedAt != ""
	return &User{
		ID:            u.ID,
		Name:          name,
		Email:         u.Email,
		Avatar:        avatar,
		EmailVerified: verified,
		Prefs:         u.UserMetadata,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		AccessedAt:    u.LastSignInAt,
	}, nil
}

// Logout ends the current session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.client.Auth().DeleteSession(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.log.Info("signed out")
	return nil
}

func (s *Service) resolveAll(rows []Property) []Property {
	if rows == nil {
		rows = []Property{}
	}
	for i := range rows {
		s.resolve(&rows[i])
	}
	return rows
}

// resolve turns stored object paths into public image URLs.
func (s *Service) resolve(p *Property) {
	p.Image = s.images.PublicURL(p.Image)
	if p.Agent != nil {
		p.Agent.Avatar = s.images.PublicURL(p.Agent.Avatar)
		if p.AgentID == "" {
			p.AgentID = p.Agent.ID
		}
	}
	for i := range p.Reviews {
		p.Reviews[i].Avatar = s.images.PublicURL(p.Reviews[i].Avatar)
	}
	for i := range p.Gallery {
		p.Gallery[i].Image = s.images.PublicURL(p.Gallery[i].Image)
	}
}
