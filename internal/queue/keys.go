package queue

import "fmt"

type keys struct {
	waiting    string
	delayed    string
	dead       string
	processing string
}

func newKeys(name, consumer string) keys {
	return keys{
		waiting:    fmt.Sprintf("queue:%s:waiting", name),
		delayed:    fmt.Sprintf("queue:%s:delayed", name),
		dead:       fmt.Sprintf("queue:%s:dead", name),
		processing: ProcessingKey(name, consumer),
	}
}

// ProcessingKey is the list holding jobs a consumer has received but not yet
// acknowledged.
func ProcessingKey(name, consumer string) string {
	return fmt.Sprintf("queue:%s:processing:%s", name, consumer)
}
