package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xiaocunxcx/ServerSentinel/internal/config"
	"github.com/xiaocunxcx/ServerSentinel/internal/database"
	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
	"github.com/xiaocunxcx/ServerSentinel/internal/repository"
	"github.com/xiaocunxcx/ServerSentinel/internal/service"
)

// catalogOps — операции каталога, доступные из CLI.
type catalogOps interface {
	CreateNode(ctx context.Context, actor model.Identity, clientIP string, p service.CreateNodeParams) (*model.Node, error)
	AddDevice(ctx context.Context, actor model.Identity, clientIP string, nodeID int64, index int, modelName *string) (*model.Device, error)
	ListNodes(ctx context.Context, limit, offset int) ([]*model.NodeWithDevices, int, error)
}

// env — внешние зависимости команд. Подменяется в тестах.
type env struct {
	migrateUp   func() error
	migrateDown func(steps int) error
	// catalog открывает каталог; close освобождает ресурсы
	catalog func(ctx context.Context) (ops catalogOps, close func(), err error)
}

// cliActor — субъект, от имени которого CLI пишет аудит.
func cliActor() model.Identity {
	name := os.Getenv("USER")
	if name == "" {
		name = "unknown"
	}
	return model.Identity{UserID: "sentinelctl:" + name, Username: name, IsAdmin: true}
}

// defaultEnv подключается к PostgreSQL по SS_DB_* переменным.
func defaultEnv() env {
	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		return cfg, config.SetupLogger(cfg), nil
	}

	return env{
		migrateUp: func() error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return database.Migrate(cfg, logger)
		},
		migrateDown: func(steps int) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return database.MigrateDown(cfg, steps, logger)
		},
		catalog: func(ctx context.Context) (catalogOps, func(), error) {
			cfg, logger, err := load()
			if err != nil {
				return nil, nil, err
			}
			pool, err := database.Connect(ctx, cfg, logger)
			if err != nil {
				return nil, nil, err
			}

			auditSvc := service.NewAuditService(repository.NewAuditLogRepository(pool), nil, "", cfg.AuditBuffer, logger)
			auditSvc.Start(context.Background())

			svc := service.NewCatalogService(repository.NewNodeRepository(pool), cfg.CatalogCacheSize, cfg.CatalogCacheTTL, auditSvc, logger)
			closeFn := func() {
				auditSvc.Stop()
				pool.Close()
			}
			return svc, closeFn, nil
		},
	}
}

func newRootCmd(e env) *cobra.Command {
	root := &cobra.Command{
		Use:           "sentinelctl",
		Short:         "Администрирование ServerSentinel",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(e), newNodeCmd(e), newDeviceCmd(e))
	return root
}

func newMigrateCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Миграции схемы БД",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Применить все миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.migrateUp(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "миграции применены")
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Откатить миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps должен быть >= 1")
			}
			if err := e.migrateDown(steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "откачено миграций: %d\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "количество откатываемых миграций")
	cmd.AddCommand(down)

	return cmd
}

func newNodeCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Узлы каталога",
	}

	var p service.CreateNodeParams
	create := &cobra.Command{
		Use:   "create",
		Short: "Зарегистрировать узел",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops, closeFn, err := e.catalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			node, err := ops.CreateNode(cmd.Context(), cliActor(), "", p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "узел создан: id=%d name=%s address=%s ssh_port=%d\n",
				node.ID, node.Name, node.IPAddress, node.SSHPort)
			return nil
		},
	}
	create.Flags().StringVar(&p.Name, "name", "", "уникальное имя узла")
	create.Flags().StringVar(&p.IPAddress, "address", "", "уникальный сетевой адрес")
	create.Flags().IntVar(&p.SSHPort, "ssh-port", 22, "порт SSH")
	create.Flags().StringVar(&p.Status, "status", "", "метка состояния (по умолчанию offline)")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("address")

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "Список узлов с устройствами",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 || limit > service.MaxLimit || offset < 0 {
				return fmt.Errorf("--limit должен быть в диапазоне 1-%d, --offset >= 0", service.MaxLimit)
			}
			ops, closeFn, err := e.catalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			nodes, total, err := ops.ListNodes(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return printNodes(cmd.OutOrStdout(), nodes, total)
		},
	}
	list.Flags().IntVar(&limit, "limit", service.DefaultLimit, "размер страницы")
	list.Flags().IntVar(&offset, "offset", 0, "смещение")

	cmd.AddCommand(create, list)
	return cmd
}

func newDeviceCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Устройства узлов",
	}

	var (
		nodeID    int64
		index     int
		modelName string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Добавить устройство узлу",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops, closeFn, err := e.catalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			var m *string
			if cmd.Flags().Changed("model") {
				m = &modelName
			}
			d, err := ops.AddDevice(cmd.Context(), cliActor(), "", nodeID, index, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "устройство добавлено: id=%d node_id=%d index=%d\n", d.ID, d.NodeID, d.DeviceIndex)
			return nil
		},
	}
	add.Flags().Int64Var(&nodeID, "node", 0, "id узла")
	add.Flags().IntVar(&index, "index", 0, "индекс устройства на узле")
	add.Flags().StringVar(&modelName, "model", "", "модель устройства")
	_ = add.MarkFlagRequired("node")
	_ = add.MarkFlagRequired("index")

	cmd.AddCommand(add)
	return cmd
}

func printNodes(out io.Writer, nodes []*model.NodeWithDevices, total int) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tSSH\tSTATUS\tDEVICES")
	for _, n := range nodes {
		devices := make([]string, len(n.Devices))
		for i, d := range n.Devices {
			devices[i] = fmt.Sprintf("%d:#%d", d.ID, d.DeviceIndex)
			if d.ModelName != nil {
				devices[i] += "(" + *d.ModelName + ")"
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			n.Node.ID, n.Node.Name, n.Node.IPAddress, n.Node.SSHPort, n.Node.Status, strings.Join(devices, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "всего узлов: %d\n", total)
	return err
}
