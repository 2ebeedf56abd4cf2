package tasks

// DefineTasks registers all available tasks
func DefineTasks(r *Registry) {
	r.Register(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)
	r.Register(SendNotificationTask.TaskID(), SendNotificationTask.HandleExecution)
	r.Register(ReconcilePendingTask.TaskID(), ReconcilePendingTask.HandleExecution)
}
