package app

import (
	"fmt"
	"strings"

	"textadapt/pkg/domain"
)

// Guidelines is the instruction set handed to the rewrite oracle.
type Guidelines struct {
	Sentence    string
	Vocabulary  string
	KnownTopics []string
}

// BuildGuidelines derives oracle instructions from a profile. A profile with
// neither sentence nor vocabulary adaptation is rejected.
func BuildGuidelines(p domain.ReadingProfile) (Guidelines, error) {
	if !p.HasGuideline() {
		return Guidelines{}, newError(KindRejected, "읽기 프로필에 적용할 가이드라인이 없습니다. 문장 또는 어휘 단계를 설정해 주세요.", nil)
	}
	sentence, err := sentenceGuideline(p.Sentence)
	if err != nil {
		return Guidelines{}, newError(KindValidation, "invalid reading profile", err)
	}
	vocabulary, err := vocabularyGuideline(p.Vocabulary)
	if err != nil {
		return Guidelines{}, newError(KindValidation, "invalid reading profile", err)
	}
	return Guidelines{
		Sentence:    sentence,
		Vocabulary:  vocabulary,
		KnownTopics: domain.NormalizeTopics(p.KnownTopics),
	}, nil
}

func sentenceGuideline(level domain.SentenceLevel) (string, error) {
	switch level {
	case domain.SentenceNone:
		return "문장 구조는 원문 그대로 유지하세요.", nil
	case domain.SentenceModerate:
		return "한 문장에 두 개 이상의 절이 있으면 자연스러운 곳에서 나누고, 지나치게 긴 수식어구는 뒤 문장으로 옮기세요.", nil
	case domain.SentenceAggressive:
		return "모든 문장을 하나의 주어와 하나의 서술어를 가진 짧은 문장으로 나누고, 접속 관계는 '그래서', '하지만' 같은 쉬운 접속어로 드러내세요.", nil
	default:
		return "", fmt.Errorf("unknown sentence level %d", level)
	}
}

func vocabularyGuideline(level domain.VocabularyLevel) (string, error) {
	switch level {
	case domain.VocabularyNone:
		return "어휘는 원문 그대로 유지하세요.", nil
	case domain.VocabularyBasic:
		return "일상에서 잘 쓰지 않는 한자어만 쉬운 말로 바꾸세요.", nil
	case domain.VocabularyModerate:
		return "어려운 한자어와 전문 용어를 쉬운 우리말로 바꾸고, 바꾸기 어려운 용어는 괄호 안에 짧은 설명을 덧붙이세요.", nil
	case domain.VocabularyAggressive:
		return "초등학생도 이해할 수 있는 말만 사용하세요. 추상적인 개념은 구체적인 예시로 풀어 쓰고, 모든 전문 용어에 짧은 설명을 덧붙이세요.", nil
	default:
		return "", fmt.Errorf("unknown vocabulary level %d", level)
	}
}

// SystemPrompt renders the guidelines as the oracle's system instruction.
func (g Guidelines) SystemPrompt() string {
	var b strings.Builder
	b.WriteString("당신은 글을 읽기 쉽게 다듬는 편집자입니다. 의미와 사실 관계는 바꾸지 말고 아래 지침에 따라 각 문단을 다시 쓰세요.\n")
	b.WriteString("- 문장: ")
	b.WriteString(g.Sentence)
	b.WriteString("\n- 어휘: ")
	b.WriteString(g.Vocabulary)
	b.WriteString("\n")
	if len(g.KnownTopics) > 0 {
		b.WriteString("- 독자가 이미 잘 아는 분야: ")
		b.WriteString(strings.Join(g.KnownTopics, ", "))
		b.WriteString(". 이 분야의 전문 용어는 쉬운 말로 바꾸지 말고 그대로 두세요.\n")
	}
	b.WriteString("- 문단의 수와 순서, 각 문단의 id를 그대로 유지하고 문단을 합치거나 나누지 마세요.\n")
	b.WriteString("- 결과는 반드시 ")
	b.WriteString(rewriteFunctionName)
	b.WriteString(" 함수를 호출하여 돌려주세요.")
	return b.String()
}
