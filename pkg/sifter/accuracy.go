package sifter

import (
	"context"
	"errors"
	"fmt"

	"github.com/amoffat/sifter/pkg/utils"
)

// RunAccuracyTest matches up to max images under testDir (all when max is
// 0). Each file is named after the design it shows.
func (s *sifterService) RunAccuracyTest(ctx context.Context, testDir string, max int) (*AccuracyReport, error) {
	report := &AccuracyReport{}
	var totalSeconds float64

	err := utils.WalkImages(testDir, max, func(path string) error {
		correct, err := utils.IDFromFilename(path)
		if err != nil {
			s.log.Warnf("Skipping %s: %v", path, err)
			return nil
		}

		info, err := s.Match(ctx, path)
		if err != nil {
			if errors.Is(err, ErrNoDescriptors) || ctx.Err() != nil {
				return err
			}
			s.log.Warnf("Match failed for %s: %v", path, err)
			return nil
		}

		report.Tested++
		totalSeconds += info.Elapsed

		if info.ID == correct {
			report.Correct++
			report.CorrectStdAway = append(report.CorrectStdAway, info.Match.StdAway)
			return nil
		}
		report.IncorrectStdAway = append(report.IncorrectStdAway, info.Match.StdAway)
		report.BadGuesses = append(report.BadGuesses, BadGuess{
			Expected: correct,
			Got:      info.ID,
			StdAway:  info.Match.StdAway,
		})
		s.log.Debugf("%d guessed as %d", correct, info.ID)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("accuracy test: %w", err)
	}

	if report.Tested > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Tested)
		report.AvgMatchSeconds = totalSeconds / float64(report.Tested)
	}
	s.log.Infof("Accuracy %.1f%% over %d images, %.3fs per match", report.Accuracy*100, report.Tested, report.AvgMatchSeconds)
	return report, nil
}
