package sifter

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/amoffat/sifter/pkg/sifter/features"
)

// FindBestMatches compares query against every preloaded design and returns
// the n candidates with the most surviving matches, best first. Ties are
// broken by design id.
func (s *sifterService) FindBestMatches(ctx context.Context, query *features.Set, n int) ([]PotentialMatch, error) {
	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()

	if len(index) == 0 {
		return nil, ErrNoDescriptors
	}

	results := make([]PotentialMatch, len(index))
	for i := range results {
		results[i] = newPotentialMatch()
	}

	compare := func(i int) {
		results[i] = PotentialMatch{
			ID:      index[i].id,
			Details: features.Compare(query, index[i].set, s.config.RatioThreshold),
		}
	}

	workers := s.config.Workers
	if s.config.SingleThreaded {
		workers = 1
	}

	if workers == 1 {
		for i := range index {
			if ctx.Err() != nil {
				break
			}
			compare(i)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					compare(i)
				}
			}()
		}
	feed:
		for i := range index {
			select {
			case jobs <- i:
			case <-ctx.Done():
				break feed
			}
		}
		close(jobs)
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Details.NumMatches != b.Details.NumMatches {
			return a.Details.NumMatches > b.Details.NumMatches
		}
		return a.ID < b.ID
	})

	if n > 0 && n < len(results) {
		results = results[:n]
	}
	return results, nil
}

// BestOfMatches re-ranks the first-pass candidates with the denser query
// set and scores the winner against the spread of the first-pass counts.
func (s *sifterService) BestOfMatches(query *features.Set, candidates []PotentialMatch) PotentialMatch {
	if len(candidates) == 0 {
		return newPotentialMatch()
	}

	best := candidates[0]
	counts := make([]int, 0, len(candidates))

	for _, c := range candidates {
		if c.ID < 0 {
			break
		}
		counts = append(counts, c.Details.NumMatches)

		train := s.lookup(c.ID)
		if train == nil {
			continue
		}
		details := features.Compare(query, train, s.config.RatioThreshold)
		if details.NumMatches > best.Details.NumMatches {
			best.ID = c.ID
			best.Details = details
		}
	}

	best.StdAway = StdAway(best.Details.NumMatches, counts)
	best.Confidence = Confidence(best.StdAway)
	return best
}

// Match identifies the design shown in the image at imagePath.
func (s *sifterService) Match(ctx context.Context, imagePath string) (*MatchInfo, error) {
	start := time.Now()
	s.log.Infof("Matching image: %s", imagePath)

	img, err := decodeImage(imagePath)
	if err != nil {
		return nil, err
	}

	query, err := features.Extract(img, s.config.QueryParams)
	if err != nil {
		return nil, fmt.Errorf("extracting query features: %w", err)
	}

	candidates, err := s.FindBestMatches(ctx, query, s.config.NumBestMatches)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("First pass kept %d candidates, leader %v", len(candidates), candidates[0])

	refine, err := features.Extract(img, s.config.RefineParams)
	if err != nil {
		return nil, fmt.Errorf("extracting refine features: %w", err)
	}

	best := s.BestOfMatches(refine, candidates)
	if best.ID < 0 {
		return nil, ErrNoMatch
	}

	info, err := s.matchInfo(best)
	if err != nil {
		return nil, err
	}
	info.Elapsed = time.Since(start).Seconds()

	s.log.Infof("Best match %d with %d matches, %.2f std away, confidence %.3f in %.3fs",
		best.ID, best.Details.NumMatches, best.StdAway, best.Confidence, info.Elapsed)
	return info, nil
}

func (s *sifterService) matchInfo(best PotentialMatch) (*MatchInfo, error) {
	design, err := s.storage.GetDesign(best.ID)
	if err != nil {
		if !errors.Is(err, ErrDesignNotFound) {
			return nil, err
		}
		s.log.Warnf("No catalog entry for design %d", best.ID)
		design = &Design{ID: best.ID}
	}

	info := &MatchInfo{
		ID:         design.ID,
		DesignURL:  s.config.DesignURLBase + strconv.Itoa(design.ID),
		Title:      design.Title,
		Artist:     design.Artist,
		Added:      design.DateAdded,
		ArtistURL:  design.ArtistURL,
		Confidence: best.Confidence,
		Width:      design.Width,
		Height:     design.Height,
		Match:      best,
	}

	path := design.ImagePath
	if path == "" {
		path = filepath.Join(s.config.DataDir, "designs", strconv.Itoa(design.ID)+".jpg")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		s.log.Warnf("No thumbnail for design %d: %v", design.ID, err)
		return info, nil
	}
	info.Thumbnail = base64.StdEncoding.EncodeToString(raw)

	if info.Width == 0 || info.Height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
			info.Width, info.Height = cfg.Width, cfg.Height
		}
	}
	return info, nil
}
