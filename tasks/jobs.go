package tasks

import (
	"text2phenotype.com/genetagger/redis"
)

const JobsDB redis.DB = 1

type JobTask struct {
	UserCanceled bool `json:"user_canceled"`
}

type JobTasks struct {
	client redis.Client
}

func (tasks JobTasks) Get(redisKey string) (*JobTask, error) {
	var task JobTask
	if err := tasks.client.GetDocument(redisKey, &task); err != nil {
		return nil, err
	}
	return &task, nil
}
