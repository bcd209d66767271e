// Package main - утилита для проверки документа с расписанием без запуска бота.
//
//	timetable index schedule.pdf             - институты и группы документа
//	timetable show schedule.pdf ИС-951       - расписание группы так, как его пришлёт бот
//	timetable show -o yaml schedule.pdf ИС-951
//
// Документ может быть локальным файлом или http(s)-адресом.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
