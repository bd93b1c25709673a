// Package cache keeps hot, rarely changing rows such as stored email
// templates close to the producers.
//
// Memory is a per-process LRU with a fixed TTL. Redis shares entries across
// processes and serializes values as JSON. Both satisfy Cache, and Templates
// puts either in front of a template source:
//
//	c := cache.NewMemory[queue.Template](5*time.Minute, 100)
//	hooks, _ := producer.NewHooks(store,
//	    producer.WithTemplateSource(cache.NewTemplates(store, c)),
//	)
package cache
