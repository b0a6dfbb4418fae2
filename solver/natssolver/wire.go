package natssolver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/domino14/spintable/solver"
)

// Subjects are derived from a base subject.
func propertiesSubject(base string) string { return base + ".properties" }
func sampleSubject(base string) string     { return base + ".sample" }

type propertiesResponse struct {
	Nodes  []int      `json:"nodes"`
	HRange [2]float64 `json:"h_range"`
	Error  string     `json:"error,omitempty"`
}

type sampleRequest struct {
	Problem solver.Problem `json:"problem"`
	Params  solver.Params  `json:"params"`
}

type sampleResponse struct {
	solver.SampleSet
	Error string `json:"error,omitempty"`
}

// RemoteError is a failure reported by the serving side.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "remote solver: " + e.Msg
}

func handleProperties(sess solver.Session) []byte {
	r := sess.HRange()
	out, _ := json.Marshal(propertiesResponse{
		Nodes:  sess.Nodes(),
		HRange: [2]float64{r.Lower, r.Upper},
	})
	return out
}

func decodeProperties(data []byte) ([]int, solver.DeviceRange, error) {
	var resp propertiesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, solver.DeviceRange{}, err
	}
	if resp.Error != "" {
		return nil, solver.DeviceRange{}, &RemoteError{resp.Error}
	}
	return resp.Nodes, solver.DeviceRange{Lower: resp.HRange[0], Upper: resp.HRange[1]}, nil
}

// handleSample solves one request on sess, waiting at most maxWait.
func handleSample(ctx context.Context, sess solver.Session, data []byte, maxWait time.Duration) []byte {
	ss, err := solve(ctx, sess, data, maxWait)
	resp := sampleResponse{SampleSet: ss}
	if err != nil {
		resp = sampleResponse{Error: err.Error()}
	}
	out, err := json.Marshal(resp)
	if err != nil {
		out, _ = json.Marshal(sampleResponse{Error: err.Error()})
	}
	return out
}

func solve(ctx context.Context, sess solver.Session, data []byte, maxWait time.Duration) (solver.SampleSet, error) {
	var req sampleRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return solver.SampleSet{}, err
	}
	f, err := sess.SubmitIsing(ctx, req.Problem, req.Params)
	if err != nil {
		return solver.SampleSet{}, err
	}
	if !f.AwaitCompletion(ctx, maxWait) {
		f.Cancel()
		return solver.SampleSet{}, errors.New("solver did not finish in time")
	}
	return f.Result()
}

func decodeSample(data []byte) (solver.SampleSet, error) {
	var resp sampleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return solver.SampleSet{}, err
	}
	if resp.Error != "" {
		return solver.SampleSet{}, &RemoteError{resp.Error}
	}
	return resp.SampleSet, nil
}
