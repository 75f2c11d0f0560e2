/*
Package ports defines the driven ports (interfaces) of the sluice engine.

These interfaces decouple the executor from storage and definition formats,
so the same engine works with a YAML Taskfile, a folder of Markdown task
documents or a graph built in Go.

# Key Interfaces

  - GraphLoader: provides a ready task graph (memory, dsl).
  - DefinitionSource: provides a declarative Taskfile (file, loam).
  - Watchable: notifies about definition changes for hot reload.
  - RunStore: persists run records (memory, file, redis).
  - DistributedLocker: serialises invocations of the same project.
*/
package ports
