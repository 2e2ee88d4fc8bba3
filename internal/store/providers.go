package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/geek-intake/internal/domain"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// fold is the only case folding used for location matching. SQLite's LOWER
// and LIKE fold ASCII only, so both the stored columns and the query tokens
// go through Go.
func fold(s string) string {
	return strings.ToLower(s)
}

// likePattern builds a case-folded substring pattern for LIKE ... ESCAPE '\'.
func likePattern(token string) string {
	return "%" + likeEscaper.Replace(fold(token)) + "%"
}

type whereClause struct {
	parts []string
	args  []any
}

func (w *whereClause) add(expr string, args ...any) {
	w.parts = append(w.parts, expr)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

func (q ProviderQuery) where() *whereClause {
	w := &whereClause{}

	if len(q.SkillIDs) > 0 {
		ph := placeholders(len(q.SkillIDs))
		args := stringArgs(q.SkillIDs)
		w.add(`(primary_skill IN (`+ph+`) OR EXISTS (
			SELECT 1 FROM json_each(providers.secondary_skills) WHERE json_each.value IN (`+ph+`)))`,
			append(args, args...)...)
	}

	if q.Area != nil {
		var ors []string
		var args []any
		if q.Area.City != "" {
			ors = append(ors, "city = ?")
			args = append(args, q.Area.City)
		}
		if q.Area.State != "" {
			ors = append(ors, "state = ?")
			args = append(args, q.Area.State)
		}
		if len(ors) > 0 {
			w.add("("+strings.Join(ors, " OR ")+")", args...)
		}
	}

	for _, tok := range q.LocationTokens {
		if tok == "" {
			continue
		}
		p := likePattern(tok)
		w.add(`(line1_folded LIKE ? ESCAPE '\' OR line2_folded LIKE ? ESCAPE '\' OR city_folded LIKE ? ESCAPE '\'
			OR state_folded LIKE ? ESCAPE '\' OR pin_folded LIKE ? ESCAPE '\')`, p, p, p, p, p)
	}

	return w
}

// QueryProviders returns one page of matching providers and the total match count
// in a single windowed query.
func (s *SQLiteStore) QueryProviders(ctx context.Context, q ProviderQuery) (*ProviderPage, error) {
	if q.Offset < 0 {
		q.Offset = 0
	}
	w := q.where()

	args := append(append([]any{}, w.args...), sqlLimit(q.Limit), q.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT data, COUNT(*) OVER () FROM providers`+w.String()+` ORDER BY rowid LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fault("query providers", err)
	}

	page := &ProviderPage{Providers: []domain.MatchedProvider{}}
	for rows.Next() {
		var data string
		var total int
		if err := rows.Scan(&data, &total); err != nil {
			closeRows(rows, "query providers")
			return nil, fault("scan provider", err)
		}
		p, err := decodeProvider(data)
		if err != nil {
			closeRows(rows, "query providers")
			return nil, err
		}
		page.Total = total
		page.Providers = append(page.Providers, domain.MatchedProvider{Provider: *p})
	}
	if err := rows.Err(); err != nil {
		closeRows(rows, "query providers")
		return nil, fault("query providers", err)
	}
	closeRows(rows, "query providers")

	// A page past the end carries no window row, so count separately.
	if len(page.Providers) == 0 && q.Offset > 0 {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM providers`+w.String(), w.args...).Scan(&page.Total); err != nil {
			return nil, fault("count providers", err)
		}
	}

	if err := s.annotateSkills(ctx, page.Providers); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *SQLiteStore) annotateSkills(ctx context.Context, providers []domain.MatchedProvider) error {
	seen := make(map[string]struct{})
	var ids []string
	for _, p := range providers {
		for _, id := range append([]string{p.PrimarySkill}, p.SecondarySkills...) {
			if _, ok := seen[id]; !ok && id != "" {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	names, err := s.skillNames(ctx, ids)
	if err != nil {
		return err
	}
	for i := range providers {
		p := &providers[i]
		p.PrimarySkillName = names[p.PrimarySkill]
		p.SecondarySkillsNames = make([]string, 0, len(p.SecondarySkills))
		for _, id := range p.SecondarySkills {
			if name, ok := names[id]; ok {
				p.SecondarySkillsNames = append(p.SecondarySkillsNames, name)
			}
		}
	}
	return nil
}

// ListProviders returns providers matching an ad hoc filter.
func (s *SQLiteStore) ListProviders(ctx context.Context, f ProviderFilter) ([]domain.Provider, error) {
	w := &whereClause{}
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if f.PrimarySkill != "" {
		w.add("primary_skill = ?", f.PrimarySkill)
	}
	if f.Brand != "" {
		w.add("EXISTS (SELECT 1 FROM json_each(providers.brands) WHERE json_each.value = ?)", f.Brand)
	}
	if f.MinYOE != nil {
		w.add("yoe >= ?", *f.MinYOE)
	}
	if f.Mode != "" {
		w.add("mode_of_service = ?", string(f.Mode))
	}
	if f.IsVerified != nil {
		w.add("is_verified = ?", boolInt(*f.IsVerified))
	}
	skip := f.Skip
	if skip < 0 {
		skip = 0
	}

	args := append(append([]any{}, w.args...), sqlLimit(f.Limit), skip)
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM providers`+w.String()+` ORDER BY rowid LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fault("list providers", err)
	}
	defer closeRows(rows, "list providers")

	providers := []domain.Provider{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fault("scan provider", err)
		}
		p, err := decodeProvider(data)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fault("list providers", err)
	}
	return providers, nil
}

// GetProvider retrieves a provider by id.
func (s *SQLiteStore) GetProvider(ctx context.Context, providerID string) (*domain.Provider, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM providers WHERE provider_id = ?`, providerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("geek", providerID)
	}
	if err != nil {
		return nil, fault("get provider", err)
	}
	return decodeProvider(data)
}

// UpsertProvider validates and stores a provider, keeping the filter columns in sync.
func (s *SQLiteStore) UpsertProvider(ctx context.Context, p *domain.Provider) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal provider: %w", err)
	}
	secondary, err := marshalList(p.SecondarySkills)
	if err != nil {
		return fmt.Errorf("marshal secondary skills: %w", err)
	}
	brands, err := marshalList(p.BrandsServiced)
	if err != nil {
		return fmt.Errorf("marshal brands: %w", err)
	}
	var addr domain.Address
	if p.Address != nil {
		addr = *p.Address
	}
	now := toMillis(time.Now().UTC())

	err = s.withRetry(ctx, "upsert provider", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO providers (
				provider_id, type, primary_skill, secondary_skills, brands, mode_of_service,
				yoe, is_verified, line1, line2, city, state, pin,
				line1_folded, line2_folded, city_folded, state_folded, pin_folded,
				data, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(provider_id) DO UPDATE SET
				type = excluded.type,
				primary_skill = excluded.primary_skill,
				secondary_skills = excluded.secondary_skills,
				brands = excluded.brands,
				mode_of_service = excluded.mode_of_service,
				yoe = excluded.yoe,
				is_verified = excluded.is_verified,
				line1 = excluded.line1,
				line2 = excluded.line2,
				city = excluded.city,
				state = excluded.state,
				pin = excluded.pin,
				line1_folded = excluded.line1_folded,
				line2_folded = excluded.line2_folded,
				city_folded = excluded.city_folded,
				state_folded = excluded.state_folded,
				pin_folded = excluded.pin_folded,
				data = excluded.data,
				updated_at = excluded.updated_at
		`, p.ID, string(p.Type), p.PrimarySkill, secondary, brands, string(p.ModeOfService),
			p.YOE, boolInt(p.IsVerified()), addr.Line1, addr.Line2, addr.City, addr.State, addr.Pin,
			fold(addr.Line1), fold(addr.Line2), fold(addr.City), fold(addr.State), fold(addr.Pin),
			string(data), now, now)
		return err
	})
	return fault("upsert provider", err)
}

func decodeProvider(data string) (*domain.Provider, error) {
	var p domain.Provider
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fault("decode provider", err)
	}
	return &p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
