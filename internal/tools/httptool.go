package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/yosida95/uritemplate/v3"
)

const defaultToolTimeout = 10 * time.Second

// httpToolClient issues requests for generic HTTP tool descriptors. Each
// call gets its own timeout derived from the tool's ResponseTimeoutSeconds
// (falling back to a sane default), not a single shared client timeout.
type httpToolClient struct {
	client *http.Client
}

func newHTTPToolClient() *httpToolClient {
	return &httpToolClient{client: &http.Client{}}
}

func (h *httpToolClient) execute(ctx context.Context, t CustomToolDescriptor, args json.RawMessage, store VariableStore) (*Result, error) {
	target, err := expandURL(t.URLTemplate, t.PathParams, t.QueryParams, args)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	timeout := defaultToolTimeout
	if t.ResponseTimeoutSeconds > 0 {
		timeout = time.Duration(t.ResponseTimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := t.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		body, err := pruneConsumedFields(args, t.PathParams, t.QueryParams)
		if err != nil {
			return &Result{Success: false, Error: err.Error()}, nil
		}
		bodyReader = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, bodyReader)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("tool request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{Success: false, Status: resp.StatusCode, Error: string(body)}, nil
	}

	extracted := make(map[string]string, len(t.Assignments))
	for _, a := range t.Assignments {
		v := gjson.GetBytes(body, a.JSONPath)
		if v.Exists() {
			extracted[a.Variable] = v.String()
			if store != nil {
				store.SetVariable(a.Variable, v.String())
			}
		}
	}

	return &Result{
		Success:   true,
		Status:    resp.StatusCode,
		Data:      json.RawMessage(body),
		Extracted: extracted,
	}, nil
}

// pruneConsumedFields strips whatever path and LLM-sourced query parameters
// expandURL already folded into the URL, so the request body doesn't resend
// data the URL already carries. Constant query params were never read from
// args, so there's nothing to prune for them.
func pruneConsumedFields(args json.RawMessage, pathParams []Param, queryParams []QueryParam) ([]byte, error) {
	body := []byte(args)
	if len(body) == 0 {
		return body, nil
	}
	for _, p := range pathParams {
		pruned, err := sjson.DeleteBytes(body, p.Name)
		if err != nil {
			return nil, fmt.Errorf("prune path param %q from body: %w", p.Name, err)
		}
		body = pruned
	}
	for _, qp := range queryParams {
		if !qp.FromLLM {
			continue
		}
		pruned, err := sjson.DeleteBytes(body, qp.Name)
		if err != nil {
			return nil, fmt.Errorf("prune query param %q from body: %w", qp.Name, err)
		}
		body = pruned
	}
	return body, nil
}

// expandURL substitutes path parameters into the tool's URL template and
// appends query parameters (constants or LLM-supplied values read from the
// call's JSON arguments).
func expandURL(tmplStr string, pathParams []Param, queryParams []QueryParam, args json.RawMessage) (string, error) {
	tmpl, err := uritemplate.New(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parse url template: %w", err)
	}

	values := uritemplate.Values{}
	for _, p := range pathParams {
		v := gjson.GetBytes(args, p.Name)
		values = values.Set(p.Name, uritemplate.String(v.String()))
	}

	expanded, err := tmpl.Expand(values)
	if err != nil {
		return "", fmt.Errorf("expand url template: %w", err)
	}

	if len(queryParams) == 0 {
		return expanded, nil
	}

	u, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("parse expanded url: %w", err)
	}
	q := u.Query()
	for _, qp := range queryParams {
		if !qp.FromLLM {
			q.Set(qp.Name, qp.Const)
			continue
		}
		v := gjson.GetBytes(args, qp.Name)
		if v.Exists() {
			q.Set(qp.Name, v.String())
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
