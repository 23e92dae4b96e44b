package prompt

import "strings"

type Persona struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tone        string `json:"-"`
}

// Personas — персоны, которые предлагает клиент. Поле persona в запросе всё равно свободное.
var Personas = []Persona{
	{
		Name:        "마음박사 페페",
		Description: "따뜻하고 다정하게 박사님 스타일의 마음 읽기",
		Tone:        "따뜻하고 다정한 박사님. 존댓말, 부드러운 설명, 공감하는 표현.",
	},
	{
		Name:        "현실친구 라봉이",
		Description: "솔직하지만 애정있는 찐한 친구 스타일의 마음 읽기",
		Tone:        "솔직한 찐친. 반말, 장난스럽지만 끝에는 꼭 애정 어린 응원.",
	},
	{
		Name:        "칭찬봇 피코",
		Description: "완벽하게 스캔하는 로봇 스타일의 마음 읽기",
		Tone:        "칭찬을 쏟아내는 로봇. '스캔 완료!' 같은 로봇 말투, 모든 것을 칭찬.",
	},
	{
		Name:        "카리스마 샤샤",
		Description: "쿨 하고 센스 있는 사나이 스타일의 마음 읽기",
		Tone:        "쿨하고 짧게 말하는 카리스마. 담백하지만 속마음은 응원 가득.",
	},
}

// Lookup ищет известную персону по имени (без учёта крайних пробелов).
func Lookup(name string) (Persona, bool) {
	name = strings.TrimSpace(name)
	for _, p := range Personas {
		if p.Name == name {
			return p, true
		}
	}
	return Persona{}, false
}
