package agent

import (
	"context"
	"sync"

	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/internal/util"
)

// Notification is one message captured by the in-memory directory service.
type Notification struct {
	SessionID string
	Audience  string
	Message   string
}

// InMemoryDirectory is a directory/notification service for tests and demo
// servers: it records notifications instead of delivering them.
type InMemoryDirectory struct {
	mu   sync.Mutex
	sent []Notification
}

// NewInMemoryDirectory creates an empty directory service backend.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{}
}

// notifyArgs declares the notify operation's parameter schema.
type notifyArgs struct {
	SessionID string `json:"sessionId,omitempty" description:"Session the notification relates to."`
	Audience  string `json:"audience,omitempty" description:"Recipient group, employee or manager."`
	Message   string `json:"message" description:"Notification text."`
}

// Service exposes the backend as the gateway's directory service.
func (d *InMemoryDirectory) Service() *gateway.FuncService {
	return gateway.NewFuncService(DirectoryServiceName).
		Handle("notify", gateway.OperationSpec{
			Description: "Send a notification to an employee or manager.",
			Parameters:  util.CreateSchema(notifyArgs{}),
		}, func(_ context.Context, payload map[string]any) (any, error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			n := Notification{}
			n.SessionID, _ = payload["sessionId"].(string)
			n.Audience, _ = payload["audience"].(string)
			n.Message, _ = payload["message"].(string)
			d.sent = append(d.sent, n)
			return map[string]any{"delivered": true}, nil
		})
}

// Sent returns a copy of all recorded notifications.
func (d *InMemoryDirectory) Sent() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Notification, len(d.sent))
	copy(out, d.sent)
	return out
}

// InMemoryDocuments is a document storage service for tests and demo
// servers: task lists, postings and archives land in process-local maps.
type InMemoryDocuments struct {
	mu       sync.Mutex
	tasks    map[string][]string // instanceID -> checklist
	postings map[string]string   // instanceID -> role
	archived map[string]string   // instanceID -> kind
}

// NewInMemoryDocuments creates an empty documents service backend.
func NewInMemoryDocuments() *InMemoryDocuments {
	return &InMemoryDocuments{
		tasks:    make(map[string][]string),
		postings: make(map[string]string),
		archived: make(map[string]string),
	}
}

// Argument structs for the documents operations; the gateway schemas derive
// from their json tags.
type createTasksArgs struct {
	InstanceID string   `json:"instanceId"`
	Items      []string `json:"items"`
}

type publishArgs struct {
	InstanceID string `json:"instanceId"`
	Role       string `json:"role,omitempty"`
}

type archiveArgs struct {
	InstanceID string `json:"instanceId"`
	Kind       string `json:"kind"`
}

// Service exposes the backend as the gateway's documents service.
func (d *InMemoryDocuments) Service() *gateway.FuncService {
	return gateway.NewFuncService(DocumentsServiceName).
		Handle("createTasks", gateway.OperationSpec{
			Description: "Create a task checklist for a workflow instance.",
			Parameters:  util.CreateSchema(createTasksArgs{}),
		}, func(_ context.Context, payload map[string]any) (any, error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			id, _ := payload["instanceId"].(string)
			items, _ := payload["items"].([]any)
			list := make([]string, 0, len(items))
			for _, item := range items {
				if s, ok := item.(string); ok {
					list = append(list, s)
				}
			}
			d.tasks[id] = list
			return map[string]any{"created": len(list)}, nil
		}).
		Handle("publish", gateway.OperationSpec{
			Description: "Publish a job posting.",
			Parameters:  util.CreateSchema(publishArgs{}),
		}, func(_ context.Context, payload map[string]any) (any, error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			id, _ := payload["instanceId"].(string)
			role, _ := payload["role"].(string)
			d.postings[id] = role
			return map[string]any{"published": true}, nil
		}).
		Handle("archive", gateway.OperationSpec{
			Description: "Archive a finished document.",
			Parameters:  util.CreateSchema(archiveArgs{}),
		}, func(_ context.Context, payload map[string]any) (any, error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			id, _ := payload["instanceId"].(string)
			kind, _ := payload["kind"].(string)
			d.archived[id] = kind
			return map[string]any{"archived": true}, nil
		})
}

// Tasks returns the checklist created for an instance.
func (d *InMemoryDocuments) Tasks(instanceID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.tasks[instanceID]))
	copy(out, d.tasks[instanceID])
	return out
}

// Posting returns the role published for an instance.
func (d *InMemoryDocuments) Posting(instanceID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	role, ok := d.postings[instanceID]
	return role, ok
}

// Archived returns the archive kind recorded for an instance.
func (d *InMemoryDocuments) Archived(instanceID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kind, ok := d.archived[instanceID]
	return kind, ok
}
