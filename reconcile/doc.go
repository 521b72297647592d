// Package reconcile decides whether a runtime value already satisfies a
// declared type and converts it when it does not.
//
// Declared types are modeled as a small closed variant (Spec): Any, Leaf,
// Optional, Union, Literal and the container shapes slice/map/tuple. Specs
// are built once (typically from a handler signature via FromType) and are
// immutable afterwards. Leaf conversions are delegated to a Registry of
// explicitly registered (source, target) converter entries; containers,
// optionals and unions recurse structurally.
package reconcile
