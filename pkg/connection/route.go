package connection

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

// Route is the REST form of a Request.
type Route struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]any
}

// URI returns the path with its encoded query string.
func (r Route) URI() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + r.Query.Encode()
}

// ClassPath returns the collection path of a class. Built-in classes have their own
// endpoints.
func ClassPath(className string) string {
	prefix := "/" + constants.APIVersion
	switch className {
	case constants.ClassUser:
		return prefix + "/users"
	case constants.ClassRole:
		return prefix + "/roles"
	case constants.ClassInstallation:
		return prefix + "/installations"
	default:
		return prefix + "/classes/" + url.PathEscape(className)
	}
}

// ObjectPath returns the path of one record.
func ObjectPath(className, objectID string) string {
	return ClassPath(className) + "/" + url.PathEscape(objectID)
}

// RouteFor maps req to its REST route.
func RouteFor(req *Request) (Route, error) {
	prefix := "/" + constants.APIVersion
	query, err := EncodeParams(req.Params)
	if err != nil {
		return Route{}, err
	}
	r := Route{Query: query, Body: req.Body}

	needClass := func() error {
		if req.ClassName == "" {
			return Errorf(constants.InvalidClassName, "%s request without class name", req.Intent)
		}
		return nil
	}
	needID := func() error {
		if err := needClass(); err != nil {
			return err
		}
		if req.ObjectID == "" {
			return Errorf(constants.MissingObjectID, "%s request on %s without object id", req.Intent, req.ClassName)
		}
		return nil
	}

	switch req.Intent {
	case IntentCreate:
		if err := needClass(); err != nil {
			return Route{}, err
		}
		r.Method, r.Path = http.MethodPost, ClassPath(req.ClassName)
	case IntentUpdate:
		if err := needID(); err != nil {
			return Route{}, err
		}
		r.Method, r.Path = http.MethodPut, ObjectPath(req.ClassName, req.ObjectID)
	case IntentDelete:
		if err := needID(); err != nil {
			return Route{}, err
		}
		r.Method, r.Path = http.MethodDelete, ObjectPath(req.ClassName, req.ObjectID)
	case IntentGet:
		if err := needID(); err != nil {
			return Route{}, err
		}
		r.Method, r.Path = http.MethodGet, ObjectPath(req.ClassName, req.ObjectID)
	case IntentQuery:
		if err := needClass(); err != nil {
			return Route{}, err
		}
		r.Method, r.Path = http.MethodGet, ClassPath(req.ClassName)
	case IntentBatch:
		requests := make([]any, 0, len(req.Requests))
		for _, sub := range req.Requests {
			sr, err := RouteFor(sub)
			if err != nil {
				return Route{}, err
			}
			item := map[string]any{"method": sr.Method, "path": sr.URI()}
			if sr.Body != nil {
				item["body"] = sr.Body
			}
			requests = append(requests, item)
		}
		r.Method, r.Path = http.MethodPost, prefix+"/batch"
		r.Body = map[string]any{"requests": requests}
	case IntentSearch:
		r.Method, r.Path = http.MethodGet, prefix+"/search/select"
	case IntentInbox:
		r.Method, r.Path = http.MethodGet, prefix+"/subscribe/statuses"
	case IntentSignUp:
		r.Method, r.Path = http.MethodPost, prefix+"/users"
	case IntentLogIn:
		r.Method, r.Path = http.MethodPost, prefix+"/login"
	case IntentBecome:
		r.Method, r.Path = http.MethodGet, prefix+"/users/me"
	case IntentUpdatePassword:
		if req.ObjectID == "" {
			return Route{}, Errorf(constants.MissingObjectID, "updatePassword without user id")
		}
		r.Method, r.Path = http.MethodPut, prefix+"/users/"+url.PathEscape(req.ObjectID)+"/updatePassword"
	case IntentRequestPasswordReset:
		r.Method, r.Path = http.MethodPost, prefix+"/requestPasswordReset"
	case IntentRequestEmailVerify:
		r.Method, r.Path = http.MethodPost, prefix+"/requestEmailVerify"
	case IntentServerDate:
		r.Method, r.Path = http.MethodGet, prefix+"/date"
	default:
		return Route{}, fmt.Errorf("%w: %q", constants.ErrUnknownIntent, req.Intent)
	}
	return r, nil
}

// EncodeParams renders query parameters. Strings and numbers are written as is,
// everything else as JSON.
func EncodeParams(params map[string]any) (url.Values, error) {
	if len(params) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
			continue
		case string:
			q.Set(k, v)
		case bool:
			q.Set(k, strconv.FormatBool(v))
		case int:
			q.Set(k, strconv.Itoa(v))
		case int64:
			q.Set(k, strconv.FormatInt(v, 10))
		case float64:
			q.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
		case []string:
			q.Set(k, strings.Join(v, ","))
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, Wrap(constants.InvalidJSON, err)
			}
			q.Set(k, string(data))
		}
	}
	return q, nil
}

// DecodeParams is the inverse of EncodeParams for the parameters the store reads:
// JSON-looking values are parsed, numbers become float64, the rest stays a string.
func DecodeParams(q url.Values) (map[string]any, error) {
	out := make(map[string]any, len(q))
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		v := vs[0]
		switch {
		case strings.HasPrefix(v, "{") || strings.HasPrefix(v, "["):
			var decoded any
			if err := json.Unmarshal([]byte(v), &decoded); err != nil {
				return nil, Errorf(constants.InvalidJSON, "invalid %s parameter: %v", k, err)
			}
			out[k] = decoded
		default:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				out[k] = f
				continue
			}
			out[k] = v
		}
	}
	return out, nil
}
