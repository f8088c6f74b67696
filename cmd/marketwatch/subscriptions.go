package main

import (
	"fmt"
	"time"

	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/store"
	"github.com/spf13/cobra"
)

var subscriptionKeys string

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Manage the push subscription registry",
	Long: `Manage the registry mapping account ids to push subscription endpoints.
Notifications are only delivered to accounts with a registered subscription.`,
}

var subscriptionsAddCmd = &cobra.Command{
	Use:   "add <account-id> <endpoint>",
	Short: "Register or replace an account's push subscription",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubscriptionsAdd,
}

var subscriptionsShowCmd = &cobra.Command{
	Use:   "show <account-id>",
	Short: "Show an account's push subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriptionsShow,
}

var subscriptionsRemoveCmd = &cobra.Command{
	Use:   "remove <account-id>",
	Short: "Remove an account's push subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriptionsRemove,
}

func init() {
	subscriptionsAddCmd.Flags().StringVar(&subscriptionKeys, "keys", "", "push encryption keys (JSON, as supplied by the client)")
	subscriptionsCmd.AddCommand(subscriptionsAddCmd)
	subscriptionsCmd.AddCommand(subscriptionsShowCmd)
	subscriptionsCmd.AddCommand(subscriptionsRemoveCmd)
	rootCmd.AddCommand(subscriptionsCmd)
}

func withStore(fn func(st *store.Store) error) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	return fn(st)
}

func runSubscriptionsAdd(cmd *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		sub := &store.PushSubscription{
			AccountID: args[0],
			Endpoint:  args[1],
			Keys:      subscriptionKeys,
			CreatedAt: time.Now().Unix(),
		}
		if err := st.UpsertPushSubscription(cmd.Context(), sub); err != nil {
			return err
		}

		fmt.Printf("Subscription registered for account %s\n", sub.AccountID)
		return nil
	})
}

func runSubscriptionsShow(cmd *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		sub, err := st.GetPushSubscription(cmd.Context(), args[0])
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("account %s has no push subscription", args[0])
			}
			return err
		}

		fmt.Printf("Account:  %s\nEndpoint: %s\nKeys:     %s\nCreated:  %s\n",
			sub.AccountID, sub.Endpoint, sub.Keys, time.Unix(sub.CreatedAt, 0).UTC().Format(time.RFC3339))
		return nil
	})
}

func runSubscriptionsRemove(cmd *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		if err := st.DeletePushSubscription(cmd.Context(), args[0]); err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("account %s has no push subscription", args[0])
			}
			return err
		}

		fmt.Printf("Subscription removed for account %s\n", args[0])
		return nil
	})
}
