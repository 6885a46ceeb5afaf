// Package events provides types and interfaces for task lifecycle notifications.
//
// This package defines the events emitted while tasks execute and the handler
// interfaces that let collaborators react to them without a direct dependency
// on the task package. Keeping the event types here avoids an import cycle
// between task execution and the components that observe it.
//
// The primary components are:
// - TaskFinished: emitted once per task execution, after its transaction settled
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
