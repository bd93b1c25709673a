// Package job runs mailpipe's background work on River, the Postgres-native
// job queue that shares the queue database.
//
// Every task travels as one River kind carrying a task name and a JSON
// payload. Tasks are plain structs registered by structural typing:
//
//	job.WithTask[producer.FanoutCursor](job.NewCampaignFanout(campaigns, enqueuer, log))
//	job.WithScheduledTask(job.NewDeliveryTick(worker, cfg.Delivery.Schedule))
//
// DeliveryTick runs the delivery worker from a River periodic job, so only
// the elected River leader ticks. CampaignFanout continues capped campaign
// sends page by page, and Welcome sends the signup mail off the request
// path.
//
// An Enqueuer is an insert-only client for processes that do not work jobs,
// such as the HTTP API. It also implements producer.FanoutScheduler.
package job
