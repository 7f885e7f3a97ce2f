// Package dashscope speaks the DashScope duplex inference protocol over
// websocket: run-task, continue-task, finish-task out; task-started,
// result-generated, task-finished, task-failed back. Binary frames carry
// audio in both directions.
package dashscope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const DefaultURL = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"

// Actions and events used by the protocol.
const (
	ActionRun      = "run-task"
	ActionContinue = "continue-task"
	ActionFinish   = "finish-task"

	EventStarted  = "task-started"
	EventResult   = "result-generated"
	EventFinished = "task-finished"
	EventFailed   = "task-failed"
)

var ErrClosed = errors.New("dashscope: connection closed before task finished")

type Header struct {
	TaskID       string `json:"task_id"`
	Action       string `json:"action,omitempty"`
	Streaming    string `json:"streaming,omitempty"`
	Event        string `json:"event,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type Payload struct {
	TaskGroup  string          `json:"task_group,omitempty"`
	Task       string          `json:"task,omitempty"`
	Function   string          `json:"function,omitempty"`
	Model      string          `json:"model,omitempty"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Input      map[string]any  `json:"input"`
	Output     json.RawMessage `json:"output,omitempty"`
}

// Frame is one JSON text message in either direction.
type Frame struct {
	Header  Header  `json:"header"`
	Payload Payload `json:"payload"`
}

// Task describes the run-task request.
type Task struct {
	Group      string
	Task       string
	Function   string
	Model      string
	Parameters map[string]any
}

// TaskError is a task-failed event.
type TaskError struct {
	TaskID  string
	Code    string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("dashscope task %s failed: %s: %s", e.TaskID, e.Code, e.Message)
}

// Event is what Next returns: either a JSON frame or a chunk of audio.
type Event struct {
	Name   string
	Output json.RawMessage
	Audio  []byte
}

// Conn is one websocket carrying one task at a time.
type Conn struct {
	ctx    context.Context
	ws     *websocket.Conn
	stop   func() bool
	taskID string

	writeMu sync.Mutex
}

// Dial opens the websocket. Cancelling ctx closes the connection, which
// unblocks any pending read.
func Dial(ctx context.Context, url, apiKey string) (*Conn, error) {
	if url == "" {
		url = DefaultURL
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+apiKey)
	ws, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dashscope dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dashscope dial: %w", err)
	}
	c := &Conn{ctx: ctx, ws: ws}
	c.stop = context.AfterFunc(ctx, func() { _ = ws.Close() })
	return c, nil
}

// TaskID is the id of the running task, empty before Start.
func (c *Conn) TaskID() string { return c.taskID }

// Start sends run-task with a fresh task id and waits for task-started.
func (c *Conn) Start(task Task) error {
	c.taskID = uuid.New().String()
	err := c.writeFrame(Frame{
		Header: Header{TaskID: c.taskID, Action: ActionRun, Streaming: "duplex"},
		Payload: Payload{
			TaskGroup:  task.Group,
			Task:       task.Task,
			Function:   task.Function,
			Model:      task.Model,
			Parameters: task.Parameters,
			Input:      map[string]any{},
		},
	})
	if err != nil {
		return err
	}
	for {
		ev, err := c.Next()
		if err != nil {
			return err
		}
		switch ev.Name {
		case EventStarted:
			return nil
		case EventFinished:
			return ErrClosed
		}
	}
}

// Continue sends continue-task with the given input.
func (c *Conn) Continue(input map[string]any) error {
	return c.writeFrame(Frame{
		Header:  Header{TaskID: c.taskID, Action: ActionContinue, Streaming: "duplex"},
		Payload: Payload{Input: input},
	})
}

// Finish tells the server no more input is coming.
func (c *Conn) Finish() error {
	return c.writeFrame(Frame{
		Header:  Header{TaskID: c.taskID, Action: ActionFinish, Streaming: "duplex"},
		Payload: Payload{Input: map[string]any{}},
	})
}

// WriteAudio sends one binary audio chunk.
func (c *Conn) WriteAudio(chunk []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return c.wrap("write audio", err)
	}
	return nil
}

// Next blocks for the next event. A task-failed event is returned as a
// *TaskError.
func (c *Conn) Next() (Event, error) {
	for {
		typ, msg, err := c.ws.ReadMessage()
		if err != nil {
			return Event{}, c.wrap("read", err)
		}
		if typ == websocket.BinaryMessage {
			return Event{Audio: msg}, nil
		}
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			continue
		}
		if f.Header.Event == EventFailed {
			return Event{}, &TaskError{TaskID: f.Header.TaskID, Code: f.Header.ErrorCode, Message: f.Header.ErrorMessage}
		}
		return Event{Name: f.Header.Event, Output: f.Payload.Output}, nil
	}
}

func (c *Conn) Close() error {
	c.stop()
	return c.ws.Close()
}

func (c *Conn) writeFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(f); err != nil {
		return c.wrap("write "+f.Header.Action, err)
	}
	return nil
}

// wrap prefers the context error once the context has closed the socket.
func (c *Conn) wrap(op string, err error) error {
	if ctxErr := c.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("dashscope %s: %w", op, err)
}
