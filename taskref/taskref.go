// Package taskref defines the task identifier type shared between cell and
// task so a cell can carry direct references to the hierarchical tasks that
// operate on it without the cell package importing the task package.
package taskref

// ID indexes a task inside a task.Graph's dense task slice.
type ID int32

// None is the sentinel for "no task attached".
const None ID = -1
