/*
Package domain contains the core models of the sluice task runner.

It is kept free of I/O and persistence, following the same hexagonal split as the
rest of the module: adapters live under pkg/adapters and talk to the core through
the interfaces in pkg/ports.

# Key Entities

  - Task: a named unit of work with declared prerequisites and an optional Action.
  - Graph: the validated, acyclic set of tasks. Built once, never mutated.
  - Completion: the one-shot signal every Action shape is adapted into.
  - WatchBinding: a rule re-running tasks when matching files change.
  - RunRecord: the persisted outcome of one invocation.
*/
package domain
