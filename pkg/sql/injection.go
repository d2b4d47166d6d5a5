package sql

import (
	"fmt"
	"sort"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a parameter value libinjection flagged.
type InjectionCheckResult struct {
	ParamName   string
	Fingerprint string
}

// CheckParameterForInjection runs libinjection over string values. Other value
// types cannot carry SQL and return nil.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(strValue); isSQLi {
		return &InjectionCheckResult{ParamName: paramName, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckAllParameters walks params, including nested objects and arrays, and
// returns every flagged value ordered by parameter path.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	walkParams("", params, &results)
	sort.Slice(results, func(i, j int) bool { return results[i].ParamName < results[j].ParamName })
	return results
}

func walkParams(path string, value any, results *[]*InjectionCheckResult) {
	switch v := value.(type) {
	case map[string]any:
		for k, inner := range v {
			walkParams(joinPath(path, k), inner, results)
		}
	case []any:
		for i, inner := range v {
			walkParams(fmt.Sprintf("%s[%d]", path, i), inner, results)
		}
	default:
		if r := CheckParameterForInjection(path, v); r != nil {
			*results = append(*results, r)
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// InjectionError is returned when API call parameters look like SQL injection.
type InjectionError struct {
	Results []*InjectionCheckResult
}

func (e *InjectionError) Error() string {
	names := make([]string, len(e.Results))
	for i, r := range e.Results {
		names[i] = r.ParamName
	}
	return "request rejected: suspicious value in parameter(s) " + strings.Join(names, ", ")
}

// CheckAPIParameters returns an *InjectionError when any string in params or
// body is flagged, nil otherwise.
func CheckAPIParameters(params map[string]any, body any) error {
	all := map[string]any{}
	if len(params) > 0 {
		all["params"] = params
	}
	if body != nil {
		all["body"] = body
	}
	if results := CheckAllParameters(all); len(results) > 0 {
		return &InjectionError{Results: results}
	}
	return nil
}
