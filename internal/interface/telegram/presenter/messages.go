package presenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE TEXTS
// Все ответы отправляются простым текстом: в расписании встречаются символы,
// которые ломают HTML-разметку.
// ══════════════════════════════════════════════════════════════════════════════

const (
	ChooseUnitText       = "Выберите институт:"
	NoUnitsText          = "Не удалось найти институты в расписании. Попробуйте позже."
	NotLoadedText        = "Расписание ещё не загружено. Попробуйте позже."
	ManualGroupText      = "Введите код вашей группы вручную, например: ИС-951"
	InvalidGroupText     = "Не похоже на код группы. Введите код в формате ИС-951."
	NoGroupText          = "Сначала укажите группу через /start."
	SubscribedText       = "Вы подписаны на уведомления об обновлении расписания."
	UnsubscribedText     = "Вы отписаны от уведомлений об обновлении расписания."
	UnitListChangedText  = "Список институтов обновился. Начните заново: /start"
	UnknownCommandText   = "Неизвестная команда. Список команд: /help"
	FreeTextHintText     = "Чтобы выбрать группу, используйте /start. Расписание: /schedule"
	ErrorText            = "😔 Произошла ошибка. Попробуйте позже."
	UnknownCallbackText  = "Кнопка устарела"
	UnitNotFoundTextTmpl = "Институт %s не найден в текущем расписании. Начните заново: /start"
)

// HelpText lists the bot commands.
const HelpText = `Бот присылает расписание занятий вашей группы.

/start - выбрать институт и группу
/schedule - расписание выбранной группы
/schedule ИС-951 - расписание любой группы
/mygroup - сохранённая группа и подписка
/subscribe - получать уведомления об обновлении расписания
/unsubscribe - не получать уведомления
/help - эта справка`

// GroupsText is the header above the group keyboard.
func GroupsText(unit string, shown, total int) string {
	if total > shown {
		return fmt.Sprintf("Институт: %s. Выберите группу (показаны первые %d):", unit, shown)
	}
	return fmt.Sprintf("Институт: %s. Выберите группу:", unit)
}

// UnitNotFoundText is shown when a unit disappeared between keyboard and click.
func UnitNotFoundText(unit string) string {
	return fmt.Sprintf(UnitNotFoundTextTmpl, unit)
}

// GroupSavedText confirms the selection. known=false warns that the current
// document has no such group yet.
func GroupSavedText(group string, known bool) string {
	text := fmt.Sprintf("Группа %s сохранена. Используйте /schedule чтобы получить расписание.", group)
	if !known {
		text += "\n\n⚠️ Этой группы пока нет в текущем расписании."
	}
	return text
}

// ScheduleText prefixes the rendered schedule with the document date.
func ScheduleText(dto *query.ScheduleDTO, now time.Time) string {
	if !dto.Found {
		return dto.Text
	}
	var sb strings.Builder
	if !dto.FetchedAt.IsZero() {
		fmt.Fprintf(&sb, "Расписание от %s (обновлено %s)\n\n",
			timeutil.FormatDateTime(dto.FetchedAt),
			timeutil.FormatRelative(dto.FetchedAt, now),
		)
	}
	sb.WriteString(dto.Text)
	return sb.String()
}

// ProfileText answers /mygroup.
func ProfileText(p *query.ProfileDTO) string {
	if p.Group == "" {
		return "Группа не выбрана. Выберите её через /start."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Ваша группа: %s\n", p.Group)
	if p.Subscribed {
		sb.WriteString("Уведомления: включены (/unsubscribe чтобы отключить)")
	} else {
		sb.WriteString("Уведомления: отключены (/subscribe чтобы включить)")
	}
	if !p.GroupInDocument {
		sb.WriteString("\n\n⚠️ Этой группы нет в текущем расписании.")
	}
	return sb.String()
}
