package leanstore

import (
	"context"
	"time"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

// DefaultInboxType is the inbox statuses go to when no type is given.
const DefaultInboxType = "default"

// Status is one message in a user's inbox.
type Status struct {
	ID        string
	MessageID int64
	InboxType string
	// Source is the user who published the status.
	Source    *Object
	Owner     *Object
	CreatedAt time.Time
	// Data holds the remaining fields of the status.
	Data map[string]any
}

// InboxQuery lists the statuses delivered to one user, newest first. The
// embedded Query adds constraints on the statuses themselves.
type InboxQuery struct {
	*Query
	owner     *Object
	inboxType string
	sinceID   int64
	maxID     int64
}

// InboxQuery creates a query on the inbox of owner, a saved user.
func (c *Client) InboxQuery(owner *Object) *InboxQuery {
	return &InboxQuery{Query: c.Query(constants.ClassStatus), owner: owner, inboxType: DefaultInboxType}
}

// InboxType selects the inbox, DefaultInboxType by default.
func (q *InboxQuery) InboxType(t string) *InboxQuery {
	q.inboxType = t
	return q
}

// SinceID returns only statuses newer than message id.
func (q *InboxQuery) SinceID(id int64) *InboxQuery {
	q.sinceID = id
	return q
}

// MaxID returns only statuses not newer than message id.
func (q *InboxQuery) MaxID(id int64) *InboxQuery {
	q.maxID = id
	return q
}

func (q *InboxQuery) params() (map[string]any, error) {
	if q.owner == nil || q.owner.ID() == "" {
		return nil, connection.NewError(constants.MissingObjectID, "inbox owner must be a saved user")
	}
	params, err := q.Query.Params()
	if err != nil {
		return nil, err
	}
	delete(params, "order")
	delete(params, "skip")
	params["owner"] = q.owner.ToPointer().Encode()
	params["inboxType"] = q.inboxType
	if q.sinceID > 0 {
		params["sinceId"] = q.sinceID
	}
	if q.maxID > 0 {
		params["maxId"] = q.maxID
	}
	return params, nil
}

func (q *InboxQuery) run(ctx context.Context, params map[string]any, opts []CallOption) *promise.Promise[*connection.Response] {
	req := &connection.Request{Intent: connection.IntentInbox, ClassName: constants.ClassStatus, Params: params}
	return q.client.send(ctx, req, newCallConfig(opts).request)
}

// Find returns the matching statuses, newest first.
func (q *InboxQuery) Find(ctx context.Context, opts ...CallOption) *promise.Promise[[]*Status] {
	params, err := q.params()
	if err != nil {
		return rejectedOn[[]*Status](q.loop(), err)
	}
	return promise.Then(q.run(ctx, params, opts), func(r *connection.Response) ([]*Status, error) {
		rows, err := r.Results()
		if err != nil {
			return nil, err
		}
		out := make([]*Status, 0, len(rows))
		for _, row := range rows {
			st, err := q.client.decodeStatus(row)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
		return out, nil
	}, nil)
}

// Count returns the number of matching statuses.
func (q *InboxQuery) Count(ctx context.Context, opts ...CallOption) *promise.Promise[int] {
	params, err := q.params()
	if err != nil {
		return rejectedOn[int](q.loop(), err)
	}
	params["count"] = 1
	params["limit"] = 0
	return promise.Then(q.run(ctx, params, opts), func(r *connection.Response) (int, error) {
		return r.Count()
	}, nil)
}

func (c *Client) decodeStatus(row map[string]any) (*Status, error) {
	st := &Status{Data: map[string]any{}}
	for key, raw := range row {
		switch key {
		case constants.KeyObjectID:
			st.ID, _ = raw.(string)
		case "messageId":
			n, _ := raw.(float64)
			st.MessageID = int64(n)
		case "inboxType":
			st.InboxType, _ = raw.(string)
		case constants.KeyCreatedAt:
			t, err := parseTime(raw)
			if err != nil {
				return nil, connection.Wrap(constants.InvalidJSON, err)
			}
			st.CreatedAt = t
		case constants.KeyUpdatedAt:
		default:
			v, err := c.decodeValue(raw, nil, "")
			if err != nil {
				return nil, err
			}
			switch key {
			case "source":
				st.Source, _ = v.(*Object)
			case "owner":
				st.Owner, _ = v.(*Object)
			default:
				st.Data[key] = v
			}
		}
	}
	return st, nil
}
