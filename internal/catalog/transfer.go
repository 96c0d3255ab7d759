package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

const exportFormatVersion = 1

// exportFile is the on-disk layout of a catalog dump.
type exportFile struct {
	Version    int       `yaml:"version"`
	ExportedAt time.Time `yaml:"exported_at"`
	Movies     []*Movie  `yaml:"movies"`
}

// Export writes the whole catalog as YAML and returns the number of movies
// written. Derived search columns are not exported; Import recomputes them.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	movies, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()

	file := exportFile{
		Version:    exportFormatVersion,
		ExportedAt: time.Now().UTC().Truncate(time.Second),
		Movies:     movies,
	}
	if err := enc.Encode(file); err != nil {
		return 0, fmt.Errorf("failed to encode catalog: %w", err)
	}
	return len(movies), nil
}

// Import loads a YAML dump produced by Export. Existing ids and invalid
// entries are skipped.
func (s *Service) Import(ctx context.Context, r io.Reader) (added, skipped int, err error) {
	var file exportFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if file.Version > exportFormatVersion {
		return 0, 0, fmt.Errorf("unsupported catalog format version %d", file.Version)
	}

	for _, m := range file.Movies {
		if m == nil {
			continue
		}
		_, err := s.Create(ctx, CreateMovieInput{
			ExternalID: m.ExternalID,
			Title:      m.Title,
			Year:       m.Year,
			MediaRef:   m.MediaRef,
			Source:     m.Source,
			AddedAt:    m.AddedAt,
		})
		switch {
		case err == nil:
			added++
		case errors.Is(err, ErrDuplicateExternalID), errors.Is(err, ErrInvalidMovie):
			s.logger.Debug().Err(err).Str("externalId", m.ExternalID).Msg("Skipping imported movie")
			skipped++
		default:
			return added, skipped, err
		}
	}

	s.logger.Info().Int("added", added).Int("skipped", skipped).Msg("Imported catalog")
	return added, skipped, nil
}
