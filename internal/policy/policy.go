// Package policy evaluates the optional Rego recipient policy with the OPA v1
// sdk.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

// Query is the rule every recipient policy must define.
const Query = "data.form_relay.recipient.result"

// Input is the document exposed to the policy as `input`.
type Input struct {
	AppID      string           `json:"appId"`
	Submission types.Submission `json:"submission"`
}

// Decision is the expected shape of the policy result.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

type RecipientPolicy struct {
	query rego.PreparedEvalQuery
}

// Load reads and compiles the policy at path. Compile once at start; the
// result is safe for concurrent use.
func Load(ctx context.Context, path string) (*RecipientPolicy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Compile(ctx, string(src))
}

func Compile(ctx context.Context, src string) (*RecipientPolicy, error) {
	r := rego.New(
		rego.Query(Query),
		rego.Module("recipient.rego", src),
		rego.SetRegoVersion(ast.RegoV1),
	)

	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy: %w", err)
	}

	return &RecipientPolicy{query: pq}, nil
}

// Evaluate runs the policy for in. An undefined result is an error.
func (p *RecipientPolicy) Evaluate(ctx context.Context, in Input) (*Decision, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("no results found during policy evaluation")
	}

	bs, err := json.Marshal(rs[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy result: %w", err)
	}

	var d Decision
	if err := json.Unmarshal(bs, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy result: %w", err)
	}

	return &d, nil
}
