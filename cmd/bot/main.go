// Package main - точка входа schedule-bot: Telegram-бота с расписанием занятий КемГУ.
//
// Бот скачивает опубликованный документ с расписанием, строит по нему каталог
// институтов и групп, отвечает студентам расписанием выбранной группы и
// рассылает подписчикам новое расписание, когда документ меняется.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: разбор документа и подписчики без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries)
// - Infrastructure: PostgreSQL, Redis, загрузка документа, Bot API, планировщик
// - Interface: Telegram-обработчики и HTTP endpoints
//
// Подкоманды:
//
//	schedule-bot serve     - бот, HTTP-сервер и фоновое обновление документа
//	schedule-bot migrate   - миграции базы данных
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}
