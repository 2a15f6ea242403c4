package identify

import (
	"context"
	"strings"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/recorder"
	"github.com/tphakala/trackid-go/internal/track"
)

// Chain tries recognizers in order. The first hit wins; if none hit and at
// least one answered with a miss the result is a miss; if every recognizer
// failed the errors are joined.
type Chain []Recognizer

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, r := range c {
		names[i] = r.Name()
	}
	return strings.Join(names, ",")
}

func (c Chain) Recognize(ctx context.Context, sample *recorder.Sample) (*track.Track, error) {
	if len(c) == 0 {
		return nil, errors.Newf("no recognition backends configured").
			Component("identify").
			Category(errors.CategoryIdentificationService).
			Build()
	}

	var errs []error
	missed := false
	for _, r := range c {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("identify").
				Category(errors.CategoryCancellation).
				Build()
		}
		t, err := r.Recognize(ctx, sample)
		switch {
		case err != nil:
			GetLogger().Debug("backend failed, trying next",
				logger.String("backend", r.Name()),
				logger.Error(err))
			errs = append(errs, err)
		case t == nil:
			missed = true
		default:
			return t, nil
		}
	}
	if missed {
		return nil, nil
	}
	return nil, serviceError(errors.Join(errs...), c.Name(), "chain")
}
