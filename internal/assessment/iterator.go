package assessment

import "context"

// Iterator pulls an assessment forward one batch per Next call.
type Iterator struct {
	svc  *Service
	req  BatchRequest
	done bool
}

// Iterate returns an iterator over the remaining batches of req. req.BatchIndex is ignored;
// each call runs whatever batch is next.
func (s *Service) Iterate(req BatchRequest) *Iterator {
	req.BatchIndex = nil
	return &Iterator{svc: s, req: req}
}

// Next runs the next batch. After the batch that completes the assessment it returns ErrDone.
// A failed finalization ends iteration with the response and a finalization error.
func (it *Iterator) Next(ctx context.Context) (*BatchResponse, error) {
	if it.done {
		return nil, ErrDone
	}
	resp, err := it.svc.RunBatch(ctx, it.req)
	if err != nil {
		return nil, err
	}
	if resp.Completed {
		it.done = true
		return resp, nil
	}
	if resp.FinalizeError != "" {
		it.done = true
		return resp, newError(CategoryFinalization, nil, "%s", resp.FinalizeError)
	}
	return resp, nil
}
