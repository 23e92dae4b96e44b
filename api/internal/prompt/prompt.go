// Package prompt держит неизменяемую часть запроса к модели: системную инструкцию,
// описание формата ответа и тексты персон.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnergyAxes — ключи energy_chart, которые ждёт фронтенд (оценки 0–100).
var EnergyAxes = []string{"joyful", "curious", "sparkle", "rest", "spacing_out"}

// ResponseSchemaDoc описывает JSON, который должна вернуть модель.
const ResponseSchemaDoc = `{
  "analysis_result": {
    "mind_expression": string,          // 그림에 담긴 마음을 한 문장으로
    "persona_mind_sentence": string,    // 페르소나 말투로 바꾼 마음 문장
    "persona_energy_sentence": string,  // 페르소나 말투로 바꾼 에너지 설명
    "word_cloud": [string, ...],        // 무드 키워드 5개
    "top_5_colors": [string, ...],      // 주요 색상 HEX 코드 5개, word_cloud 와 같은 순서
    "energy_chart": {                   // 0~100 사이 숫자
      "joyful": number, "curious": number, "sparkle": number, "rest": number, "spacing_out": number
    }
  },
  "character_commentary": string,       // 페르소나가 들려주는 전체 감상평
  "commentary_sections": [              // 감상평을 문단별로 나눈 목록 (최소 3개)
    {"title": string, "content": string}
  ]
}`

// SystemInstruction — системная часть, одинаковая для каждого вызова.
const SystemInstruction = `너는 아이와 어른이 그린 그림, 사진을 보고 그 안에 담긴 마음과 에너지를 읽어 주는 분석가야.
규칙:
1) 업로드된 이미지를 모두 함께 보고 하나의 분석 결과를 만든다.
2) 진단이나 평가가 아니라 따뜻한 해석을 한다. 부정적인 단정, 의학적/심리학적 진단 표현은 쓰지 않는다.
3) 모든 문장은 사용자가 선택한 페르소나의 말투로 쓴다.
4) word_cloud 와 top_5_colors 는 각각 정확히 5개, 같은 순서로 짝을 이룬다.
5) energy_chart 는 joyful, curious, sparkle, rest, spacing_out 다섯 개 키를 모두 채운다.
6) commentary_sections 는 순서대로 "마음 읽기", "에너지 읽기", "색채 분위기" 를 포함하고 필요하면 더 추가한다.
7) 출력은 아래 형식의 JSON 하나뿐이다. JSON 밖의 텍스트, 마크다운, 코드 펜스는 금지.

응답 형식:
` + ResponseSchemaDoc

// UserText — текстовая часть пользовательского сообщения с персоной.
func UserText(persona string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "사용자가 선택한 페르소나: %s\n위 페르소나 말투로 JSON 포맷에 맞춰 답변해줘.", persona)
	if p, ok := Lookup(persona); ok {
		fmt.Fprintf(&b, "\n페르소나 말투: %s", p.Tone)
	}
	return b.String()
}

// LoadSystemInstruction возвращает инструкцию из <dir>/system.txt, если файл есть и не пуст,
// иначе встроенную SystemInstruction.
func LoadSystemInstruction(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return SystemInstruction, nil
	}
	p := filepath.Join(dir, "system.txt")
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return SystemInstruction, nil
		}
		return "", fmt.Errorf("prompt: read %s: %w", p, err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return SystemInstruction, nil
	}
	return s, nil
}
