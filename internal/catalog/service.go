package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/cinesearch/cinesearch/internal/database"
	"github.com/cinesearch/cinesearch/internal/search/normalize"
	"github.com/cinesearch/cinesearch/internal/search/ranking"
)

var (
	ErrMovieNotFound       = errors.New("movie not found")
	ErrDuplicateExternalID = errors.New("movie with this external ID already exists")
	ErrInvalidMovie        = errors.New("invalid movie data")
)

const (
	// DefaultCandidateLimit caps how many rows narrowing hands to the ranker.
	DefaultCandidateLimit = 200

	// NormalizationVersionKey is the settings key holding the rule set
	// version the stored derived columns were computed with.
	NormalizationVersionKey = "normalization_version"

	maxTokenPatterns = 6
	maxWildcardRunes = 24
	rebuildBatchSize = 500
)

const movieColumns = `external_id, title, normalized_title, title_signature, year, media_ref, source_chat_id, source_message_id, added_at`

// Service provides catalog operations.
type Service struct {
	db     *database.DB
	logger zerolog.Logger
}

// NewService creates a new catalog service.
func NewService(db *database.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMovie(row scanner) (*Movie, error) {
	var m Movie
	err := row.Scan(
		&m.ExternalID,
		&m.Title,
		&m.NormalizedTitle,
		&m.TitleSignature,
		&m.Year,
		&m.MediaRef,
		&m.Source.ChatID,
		&m.Source.MessageID,
		&m.AddedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Get retrieves a movie by external ID.
func (s *Service) Get(ctx context.Context, externalID string) (*Movie, error) {
	row := s.db.Conn().QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+movieColumns+` FROM movies WHERE external_id = ?`), externalID)

	movie, err := scanMovie(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}
	return movie, nil
}

// Create adds a movie. The normalized title and signature are derived from
// the title in the same statement.
func (s *Service) Create(ctx context.Context, input CreateMovieInput) (*Movie, error) {
	input.ExternalID = strings.TrimSpace(input.ExternalID)
	input.Title = strings.TrimSpace(input.Title)
	input.Year = strings.TrimSpace(input.Year)

	if input.ExternalID == "" || input.Title == "" || input.MediaRef == "" {
		return nil, ErrInvalidMovie
	}

	normalized := normalize.NormalizeTitle(input.Title)
	if normalized == "" {
		return nil, fmt.Errorf("%w: title %q has no searchable characters", ErrInvalidMovie, input.Title)
	}

	addedAt := input.AddedAt.UTC().Truncate(time.Second)
	if input.AddedAt.IsZero() {
		addedAt = database.Now()
	}

	movie := &Movie{
		ExternalID:      input.ExternalID,
		Title:           input.Title,
		NormalizedTitle: normalized,
		TitleSignature:  normalize.ConsonantSignature(normalized),
		Year:            input.Year,
		MediaRef:        input.MediaRef,
		Source:          input.Source,
		AddedAt:         addedAt,
	}

	_, err := s.db.Conn().ExecContext(ctx, s.db.Rebind(`
		INSERT INTO movies (`+movieColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		movie.ExternalID,
		movie.Title,
		movie.NormalizedTitle,
		movie.TitleSignature,
		movie.Year,
		movie.MediaRef,
		movie.Source.ChatID,
		movie.Source.MessageID,
		movie.AddedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateExternalID
		}
		return nil, fmt.Errorf("failed to create movie: %w", err)
	}

	s.logger.Info().
		Str("externalId", movie.ExternalID).
		Str("title", movie.Title).
		Msg("Added movie")

	return movie, nil
}

// Delete removes a movie by external ID.
func (s *Service) Delete(ctx context.Context, externalID string) error {
	res, err := s.db.Conn().ExecContext(ctx, s.db.Rebind(`DELETE FROM movies WHERE external_id = ?`), externalID)
	if err != nil {
		return fmt.Errorf("failed to delete movie: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete movie: %w", err)
	}
	if n == 0 {
		return ErrMovieNotFound
	}

	s.logger.Info().Str("externalId", externalID).Msg("Deleted movie")
	return nil
}

// Count returns the number of movies in the catalog.
func (s *Service) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return n, nil
}

// List returns every movie ordered by title.
func (s *Service) List(ctx context.Context) ([]*Movie, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT `+movieColumns+` FROM movies ORDER BY title, external_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	defer rows.Close()

	var movies []*Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}

// Candidates returns a bounded, unranked list of rows that could match the
// normalized query. An exact normalized match always survives the cap, then
// prefix matches, then rows containing the query.
func (s *Service) Candidates(ctx context.Context, normalizedQuery string, limit int) ([]ranking.Candidate, error) {
	q := strings.TrimSpace(normalizedQuery)
	if q == "" {
		return []ranking.Candidate{}, nil
	}
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	where, args := candidateFilter(q)
	query := `SELECT external_id, title, normalized_title FROM movies WHERE ` + where + `
		ORDER BY CASE
			WHEN normalized_title = ? THEN 0
			WHEN normalized_title LIKE ? THEN 1
			WHEN normalized_title LIKE ? THEN 2
			ELSE 3
		END, normalized_title, external_id
		LIMIT ?`
	args = append(args, q, q+"%", "%"+q+"%", limit)

	rows, err := s.db.Conn().QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]ranking.Candidate, 0, limit)
	for rows.Next() {
		var c ranking.Candidate
		if err := rows.Scan(&c.ID, &c.Title, &c.NormalizedTitle); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// candidateFilter builds the OR-ed LIKE conditions for a normalized query.
func candidateFilter(q string) (string, []any) {
	conds := []string{"normalized_title LIKE ?"}
	args := []any{"%" + q + "%"}

	seen := map[string]bool{q: true}
	for _, tok := range strings.Fields(q) {
		if len(conds) > maxTokenPatterns || seen[tok] || utf8.RuneCountInString(tok) < 2 {
			continue
		}
		seen[tok] = true
		conds = append(conds, "normalized_title LIKE ?")
		args = append(args, "%"+tok+"%")
	}

	sig := normalize.ConsonantSignature(q)
	if sig != "" {
		conds = append(conds, "title_signature LIKE ?")
		args = append(args, "%"+sig+"%")

		if n := utf8.RuneCountInString(sig); n >= 2 && n <= maxWildcardRunes {
			conds = append(conds, "title_signature LIKE ?")
			args = append(args, subsequencePattern(sig))
		}
	}

	return strings.Join(conds, " OR "), args
}

// subsequencePattern turns "ktr" into "%k%t%r%".
func subsequencePattern(s string) string {
	var b strings.Builder
	b.WriteByte('%')
	for _, r := range s {
		b.WriteRune(r)
		b.WriteByte('%')
	}
	return b.String()
}

type derivedUpdate struct {
	externalID string
	normalized string
	signature  string
}

// RebuildNormalizedTitles recomputes the derived search columns of every row
// and records the current normalization version. It returns how many rows
// changed and how many were inspected.
func (s *Service) RebuildNormalizedTitles(ctx context.Context) (updated, total int, err error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT external_id, title, normalized_title, title_signature FROM movies`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read titles: %w", err)
	}

	var pending []derivedUpdate
	for rows.Next() {
		var id, title, normalized, signature string
		if err := rows.Scan(&id, &title, &normalized, &signature); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan title: %w", err)
		}
		total++

		wantNorm := normalize.NormalizeTitle(title)
		wantSig := normalize.ConsonantSignature(wantNorm)
		if wantNorm != normalized || wantSig != signature {
			pending = append(pending, derivedUpdate{externalID: id, normalized: wantNorm, signature: wantSig})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, fmt.Errorf("failed to read titles: %w", err)
	}
	rows.Close()

	update := s.db.Rebind(`UPDATE movies SET normalized_title = ?, title_signature = ? WHERE external_id = ?`)
	for start := 0; start < len(pending); start += rebuildBatchSize {
		batch := pending[start:min(start+rebuildBatchSize, len(pending))]
		err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, update)
			if err != nil {
				return err
			}
			defer stmt.Close()

			for _, u := range batch {
				if _, err := stmt.ExecContext(ctx, u.normalized, u.signature, u.externalID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return updated, total, fmt.Errorf("failed to update titles: %w", err)
		}
		updated += len(batch)
	}

	if err := s.db.SetSetting(ctx, NormalizationVersionKey, normalize.Version); err != nil {
		return updated, total, err
	}

	s.logger.Info().
		Int("updated", updated).
		Int("total", total).
		Str("version", normalize.Version).
		Msg("Rebuilt normalized titles")

	return updated, total, nil
}

// EnsureNormalized rebuilds the derived columns when they were computed with
// a different normalization version. It reports whether a rebuild ran.
func (s *Service) EnsureNormalized(ctx context.Context) (bool, error) {
	stored, err := s.db.Setting(ctx, NormalizationVersionKey)
	if err != nil && !errors.Is(err, database.ErrSettingNotFound) {
		return false, err
	}
	if stored == normalize.Version {
		return false, nil
	}

	s.logger.Info().
		Str("stored", stored).
		Str("current", normalize.Version).
		Msg("Normalization version changed, rebuilding titles")

	if _, _, err := s.RebuildNormalizedTitles(ctx); err != nil {
		return false, err
	}
	return true, nil
}
