// sentinelctl — административная утилита ServerSentinel:
// миграции схемы и наполнение каталога узлов и устройств.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ошибка:", err)
		os.Exit(1)
	}
}
