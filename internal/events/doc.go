// Package events turns writes to the task record store into change events
// and delivers them to handlers.
//
// The primary components are:
//   - ChangeEvent: an INSERT, MODIFY or REMOVE with the record images
//   - ObservedTaskStore: a store.TaskStore decorator that emits an event
//     after every successful write
//   - InMemoryEventEmitter: fans an event out to registered handlers
//   - AsyncHandler: hands each event to the worker runner so the writer
//     never waits on its handlers
package events
