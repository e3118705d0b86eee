package scoring

func clarityFeedback(score float64) string {
	switch {
	case score >= 8.0:
		return "Excellent articulation and clear pronunciation"
	case score >= 6.0:
		return "Good clarity with minor areas for improvement"
	case score >= 4.0:
		return "Some pronunciation issues; consider slowing down"
	default:
		return "Significant clarity issues; focus on articulation and reducing filler words"
	}
}

func paceFeedback(score, wpm float64) string {
	switch {
	case score >= 8.0:
		return "Excellent pacing with good use of pauses"
	case score >= 6.0:
		return "Good pace; consider adding more strategic pauses"
	case score >= 4.0:
		if wpm > 150 {
			return "Speaking too fast; slow down and add pauses"
		}
		return "Speaking too slowly; increase pace slightly"
	default:
		return "Pace needs significant improvement; practice with metronome"
	}
}

func volumeFeedback(score, meanRMS float64) string {
	switch {
	case score >= 8.0:
		return "Excellent volume control and consistency"
	case score >= 6.0:
		return "Good volume; minor variations noted"
	case score >= 4.0:
		if meanRMS < -20 {
			return "Volume too low; speak louder"
		}
		return "Volume too high; moderate your voice"
	default:
		return "Volume control needs improvement; practice projection"
	}
}

func engagementFeedback(score float64) string {
	switch {
	case score >= 8.0:
		return "Excellent vocal variety and engaging delivery"
	case score >= 6.0:
		return "Good engagement; add more vocal variety"
	case score >= 4.0:
		return "Limited vocal variety; practice pitch changes"
	default:
		return "Needs more vocal engagement; work on pitch variation"
	}
}

func structureFeedback(score float64) string {
	switch {
	case score >= 8.0:
		return "Excellent sentence structure and grammar"
	case score >= 6.0:
		return "Good structure with minor grammar issues"
	case score >= 4.0:
		return "Some structural issues; review grammar and organization"
	default:
		return "Significant structural problems; focus on grammar and sentence variety"
	}
}
