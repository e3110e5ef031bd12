package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chronicler-ai/chronicler/pkg/ai"
)

type fakeAIClient struct {
	lastName      string
	lastPrompt    string
	lastOpts      ai.GenerateOptions
	response      func(out any) error
	err           error
	transientErrs int
	calls         int
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	f.calls++
	f.lastName = name
	f.lastPrompt = prompt
	f.lastOpts = ai.GenerateOptions{}
	for _, o := range opts {
		o(&f.lastOpts)
	}
	if f.transientErrs > 0 {
		f.transientErrs--
		return errors.New("model unreachable")
	}
	if f.err != nil {
		return f.err
	}
	if f.response != nil {
		return f.response(out)
	}
	return nil
}

func (f *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeAIClient) ResetMetrics()               {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestJudge_RendersInputIntoPrompt(t *testing.T) {
	fake := &fakeAIClient{
		response: func(out any) error {
			resp := out.(*BoundaryResponse)
			resp.HasBoundary = true
			resp.Index = 15
			return nil
		},
	}
	o := NewLLMOracle(fake, "test-model")

	req := BoundaryRequest{
		Statements: []BoundaryStatement{
			{Index: 0, Role: "user", Text: "Let's plan the trip."},
		},
		Threshold: 14,
	}
	var resp BoundaryResponse
	if err := o.Judge(context.Background(), TaskDetectBoundary, req, &resp); err != nil {
		t.Fatalf("Judge() error = %v", err)
	}

	if !resp.HasBoundary || resp.Index != 15 {
		t.Fatalf("Judge() resp = %+v", resp)
	}
	if fake.lastName != string(TaskDetectBoundary) {
		t.Fatalf("schema name = %q, want %q", fake.lastName, TaskDetectBoundary)
	}
	if !strings.Contains(fake.lastPrompt, `"Let's plan the trip."`) {
		t.Fatalf("prompt does not contain encoded input:\n%s", fake.lastPrompt)
	}
	if fake.lastOpts.Model != "test-model" {
		t.Fatalf("model = %q, want test-model", fake.lastOpts.Model)
	}
}

func TestJudge_DeterministicTasksUseZeroTemperature(t *testing.T) {
	for _, task := range []TaskType{TaskDecideMerge, TaskCombineData, TaskClassifyNode} {
		fake := &fakeAIClient{response: func(out any) error { return nil }}
		o := NewLLMOracle(fake, "")

		var resp DecideMergeResponse
		if err := o.Judge(context.Background(), task, DecideMergeRequest{}, &resp); err != nil {
			t.Fatalf("Judge(%s) error = %v", task, err)
		}
		if fake.lastOpts.Temperature != 0 {
			t.Fatalf("Judge(%s) temperature = %v, want 0", task, fake.lastOpts.Temperature)
		}
	}
}

func TestJudge_WrapsFailuresAsOracleError(t *testing.T) {
	fake := &fakeAIClient{err: errors.New("model unreachable")}
	o := NewLLMOracle(fake, "")

	var resp ResolveResponse
	err := o.Judge(context.Background(), TaskResolveReferences, ResolveRequest{}, &resp)
	if err == nil {
		t.Fatal("Judge() expected error")
	}

	var oErr *Error
	if !errors.As(err, &oErr) {
		t.Fatalf("Judge() error type = %T, want *Error", err)
	}
	if oErr.Task != TaskResolveReferences {
		t.Fatalf("Error.Task = %s, want %s", oErr.Task, TaskResolveReferences)
	}
	if !strings.Contains(oErr.Error(), "model unreachable") {
		t.Fatalf("Error() = %q", oErr.Error())
	}
	if fake.calls != judgeAttempts {
		t.Fatalf("client calls = %d, want %d", fake.calls, judgeAttempts)
	}
}

func TestJudge_RetriesTransientFailure(t *testing.T) {
	fake := &fakeAIClient{
		transientErrs: 1,
		response: func(out any) error {
			resp := out.(*ClassifyResponse)
			resp.Category = "social/person"
			return nil
		},
	}
	o := NewLLMOracle(fake, "")

	var resp ClassifyResponse
	if err := o.Judge(context.Background(), TaskClassifyNode, ClassifyRequest{}, &resp); err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if resp.Category != "social/person" {
		t.Fatalf("Category = %q after retry", resp.Category)
	}
	if fake.calls != 2 {
		t.Fatalf("client calls = %d, want 2", fake.calls)
	}
}

func TestJudge_DoesNotRetryCanceledContext(t *testing.T) {
	fake := &fakeAIClient{err: errors.New("model unreachable")}
	o := NewLLMOracle(fake, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var resp ClassifyResponse
	err := o.Judge(ctx, TaskClassifyNode, ClassifyRequest{}, &resp)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Judge() error = %v, want context.Canceled", err)
	}
	if fake.calls != 0 {
		t.Fatalf("client calls = %d, want 0", fake.calls)
	}
}

func TestJudge_UnknownTask(t *testing.T) {
	o := NewLLMOracle(&fakeAIClient{}, "")
	var out struct{}
	if err := o.Judge(context.Background(), TaskType("guess_lottery"), nil, &out); err == nil {
		t.Fatal("Judge() expected error for unknown task")
	}
}

func TestStub_DispatchAndCounts(t *testing.T) {
	stub := NewStub()
	stub.Handle(TaskClassifyNode, func(in any, out any) error {
		req := in.(ClassifyRequest)
		resp := out.(*ClassifyResponse)
		resp.Category = req.Categories[0]
		resp.Confidence = 0.9
		return nil
	})

	var resp ClassifyResponse
	req := ClassifyRequest{Label: "Sam", Categories: []string{"person", "place"}}
	if err := stub.Judge(context.Background(), TaskClassifyNode, req, &resp); err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if resp.Category != "person" {
		t.Fatalf("Category = %q, want person", resp.Category)
	}
	if got := stub.Calls(TaskClassifyNode); got != 1 {
		t.Fatalf("Calls() = %d, want 1", got)
	}

	var other ExtractResponse
	err := stub.Judge(context.Background(), TaskExtractFacts, ExtractRequest{}, &other)
	if err == nil {
		t.Fatal("Judge() expected error for unhandled task")
	}
	var oErr *Error
	if !errors.As(err, &oErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
}

func TestPromptsHaveSinglePlaceholder(t *testing.T) {
	for task, spec := range taskSpecs {
		if got := strings.Count(spec.prompt, "%s"); got != 1 {
			t.Fatalf("task %s prompt has %d placeholders, want 1", task, got)
		}
		rendered := fmt.Sprintf(spec.prompt, "{}")
		if strings.Contains(rendered, "%!") {
			t.Fatalf("task %s prompt renders badly:\n%s", task, rendered)
		}
	}
}
