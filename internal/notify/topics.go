package notify

import "fmt"

func TopicLearnerEmotion(prefix, userID string) string {
	return fmt.Sprintf("%s/learner/%s/emotion", prefix, userID)
}

func TopicLearnerIntervention(prefix, userID string) string {
	return fmt.Sprintf("%s/learner/%s/intervention", prefix, userID)
}

func TopicLearnerFeedback(prefix, userID string) string {
	return fmt.Sprintf("%s/learner/%s/feedback", prefix, userID)
}

func TopicLearnerFeedbackWildcard(prefix string) string {
	return fmt.Sprintf("%s/learner/+/feedback", prefix)
}
