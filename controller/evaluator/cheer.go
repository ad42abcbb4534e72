package evaluator

import "github.com/kirsrus/healing-garden/server/model"

// Сообщения по настроению от 0 (очень плохо) до 4 (отлично)
var moodMessages = []string{
	"힘든 하루였군요. 식물들이 곁에 있어요. 천천히 쉬어가세요.",
	"조금 지친 하루였나 봐요. 식물에게 물을 주며 잠시 숨을 돌려보세요.",
	"평온한 하루네요. 식물과 함께 차분한 시간을 보내세요.",
	"기분 좋은 하루네요! 식물도 함께 기뻐하고 있어요.",
	"최고의 하루군요! 그 기운을 식물에게도 나눠주세요.",
}

const noMoodMessage = "오늘도 식물을 돌봐주셔서 고마워요."

func cheerMessage(mood *model.MoodDiaryEntry) string {
	if mood == nil || mood.Mood < 0 || mood.Mood >= len(moodMessages) {
		return noMoodMessage
	}
	return moodMessages[mood.Mood]
}
