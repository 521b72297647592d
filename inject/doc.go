// Package inject builds typed keyword arguments for subscriber callbacks.
//
// A handler function is inspected exactly once, at registration time: every
// parameter is bound to a ParamDescriptor carrying its declared type Spec, a
// value extractor and an optional converter override. At call time the
// descriptors pull raw values out of the event and the reconcile engine
// bridges the gap between what the event carries and what the handler
// declared. No reflection over the signature happens on the dispatch path.
package inject
