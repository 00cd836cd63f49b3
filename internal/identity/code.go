// Package identity формирует идентификационный код сессии для штрихкода на квитанции.
//
// Код детерминирован: номер транспорта и время въезда однозначно задают его.
// Два въезда одного номера в пределах одной минуты дают одинаковый код,
// поэтому поиск по коду ограничивается транспортом, который ещё не выехал.
// Код состоит только из символов ASCII и пригоден для Code128.
package identity

import (
	"hash/fnv"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const separator = "-"

// DeriveCode возвращает код сессии по номеру транспорта и времени въезда.
// Если в номере есть буквы или цифры вне ASCII, после латинской части
// добавляется хеш всех букв и цифр номера, чтобы разные номера не совпадали.
func DeriveCode(plate string, entry time.Time) string {
	var ascii, all strings.Builder
	nonASCII := false
	for _, r := range strings.ToUpper(plate) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r) {
			continue
		}
		all.WriteRune(r)
		if r < unicode.MaxASCII {
			ascii.WriteRune(r)
		} else {
			nonASCII = true
		}
	}

	var b strings.Builder
	b.WriteString(ascii.String())
	if nonASCII {
		h := fnv.New32a()
		h.Write([]byte(all.String()))
		b.WriteString(separator)
		b.WriteString(strings.ToUpper(strconv.FormatUint(uint64(h.Sum32()), 36)))
	}
	b.WriteString(separator)
	b.WriteString(strings.ToUpper(strconv.FormatInt(entry.Unix()/60, 36)))
	return b.String()
}

// Normalize приводит введённый или отсканированный код к каноническому виду.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
